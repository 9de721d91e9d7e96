package naming

import (
	"errors"
	"fmt"
)

// ErrFatal marks errors that must abort the whole run.
var ErrFatal = errors.New("fatal")

// IsFatal reports whether err, or anything it wraps, is fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// Fatal wraps err so IsFatal reports true.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

type ChannelParseError struct {
	Filename string
	Token    string
}

func (e *ChannelParseError) Error() string {
	return fmt.Sprintf("could not find channel for %s (%s)", e.Filename, e.Token)
}

type UnparsableVariantError struct {
	Filename string
	Reason   string
}

func (e *UnparsableVariantError) Error() string {
	return fmt.Sprintf("could not parse variant file %s: %s", e.Filename, e.Reason)
}

type MissingReferenceError struct {
	Id   string
	Name string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("no sampleRef for %s (%s)", e.Id, e.Name)
}

type NoConsensusError struct {
	SampleId string
	Line     string
}

func (e *NoConsensusError) Error() string {
	return fmt.Sprintf("no consensus line for sample %s (%s)", e.SampleId, e.Line)
}

type NotPublishedError struct {
	SampleId string
	Line     string
}

func (e *NotPublishedError) Error() string {
	return fmt.Sprintf("sample %s (%s) was not published", e.SampleId, e.Line)
}

type NoPublishingNameError struct {
	SampleId string
	Line     string
}

func (e *NoPublishingNameError) Error() string {
	return fmt.Sprintf("no publishing name for sample %s (%s)", e.SampleId, e.Line)
}

type NoDriverError struct {
	SampleId string
	Line     string
}

func (e *NoDriverError) Error() string {
	return fmt.Sprintf("no driver for sample %s (%s)", e.SampleId, e.Line)
}

type BadDriverError struct {
	SampleId string
	Line     string
	Driver   string
}

func (e *BadDriverError) Error() string {
	if e.Driver == "" {
		return fmt.Sprintf("bad driver for sample %s (%s)", e.SampleId, e.Line)
	}
	return fmt.Sprintf("bad driver %s for sample %s (%s)", e.Driver, e.SampleId, e.Line)
}

// InconsistentSampleError is returned when the metadata store hands back a sample whose
// line is not part of its own name. It is always fatal.
type InconsistentSampleError struct {
	SampleId string
	Line     string
	Name     string
}

func (e *InconsistentSampleError) Error() string {
	return fmt.Sprintf("line %s not present in name %s for sample %s", e.Line, e.Name, e.SampleId)
}

func (e *InconsistentSampleError) Unwrap() error {
	return ErrFatal
}
