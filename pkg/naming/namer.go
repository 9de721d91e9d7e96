package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
)

// Outcome is the closed set of results the naming gate can produce.
type Outcome int

const (
	Accepted Outcome = iota
	MissingReference
	NoConsensus
	NotPublished
	NoPublishingName
	NoDriver
	BadDriver
	ParseError
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case MissingReference:
		return "No sampleRef"
	case NoConsensus:
		return "No Consensus"
	case NotPublished:
		return "Not published"
	case NoPublishingName:
		return "No publishing name"
	case NoDriver:
		return "No driver"
	case BadDriver:
		return "Bad driver"
	case ParseError:
		return "Bad channel"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is what Namer returns for one sample: a name when Accepted, the
// rejection cause otherwise. Warnings are non-blocking findings for the error log.
type Result struct {
	Outcome  Outcome
	Name     string
	Err      error
	Warnings []string
}

func (r Result) Accepted() bool {
	return r.Outcome == Accepted
}

// Severity decides whether a missing publishing name or driver only skips the
// sample or stops the run.
type Severity int

const (
	Skip Severity = iota
	Abort
)

// ParseSeverity accepts "skip" or "fatal"; empty means Skip.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return Skip, nil
	case "fatal", "abort":
		return Abort, nil
	default:
		return Skip, fmt.Errorf("unknown policy %q", s)
	}
}

// Policy is only consulted in commit mode. Dry runs always skip.
type Policy struct {
	MissingPublishingName Severity
	MissingDriver         Severity
}

// DriverLookup resolves the driver for a fly line.
type DriverLookup interface {
	Driver(line string) (string, bool)
}

// DriverMap is a DriverLookup backed by a line -> driver map.
type DriverMap map[string]string

func (m DriverMap) Driver(line string) (string, bool) {
	d, ok := m[line]
	return d, ok
}

// Candidate bundles what the gate needs to know about one sample.
type Candidate struct {
	Record sample.Record
	// Info is the metadata-store sample; nil when the record has no reference.
	Info *sample.Info
	// Eligible is false when the library requires publish flags and the sample has none.
	Eligible bool
}

// Namer validates samples and computes their primary names.
type Namer struct {
	library Library
	drivers DriverLookup
	policy  Policy
	commit  bool
}

func New(library Library, drivers DriverLookup, policy Policy, commit bool) *Namer {
	if drivers == nil {
		drivers = DriverMap{}
	}
	return &Namer{
		library: library,
		drivers: drivers,
		policy:  policy,
		commit:  commit,
	}
}

func (n *Namer) Library() Library {
	return n.library
}

// Primary runs the validation gate and, if the sample passes, returns its primary name.
func (n *Namer) Primary(c Candidate) Result {
	if n.library.EM() {
		return n.emPrimary(c.Record)
	}
	return n.lightPrimary(c)
}

func (n *Namer) emPrimary(rec sample.Record) Result {
	body, _ := BodyID(rec.Name)
	if body == "" {
		return Result{Outcome: ParseError, Err: &UnparsableVariantError{Filename: rec.Name, Reason: "no body id"}}
	}
	return Result{Outcome: Accepted, Name: EMName(body, rec.AlignmentSpace, false, false)}
}

// Searchable returns the unconverted EM file name used under searchable_neurons.
func (n *Namer) Searchable(rec sample.Record) (string, error) {
	body, flipped := BodyID(rec.Name)
	if body == "" {
		return "", &UnparsableVariantError{Filename: rec.Name, Reason: "no body id"}
	}
	return EMName(body, rec.AlignmentSpace, true, flipped), nil
}

func (n *Namer) lightPrimary(c Candidate) Result {
	rec := c.Record
	if rec.SampleRef == "" || c.Info == nil {
		return reject(MissingReference, &MissingReferenceError{Id: rec.Id, Name: rec.Name})
	}
	info := c.Info
	sid := sample.Reference(rec.SampleRef)
	if info.Line == sample.NoConsensus {
		return reject(NoConsensus, &NoConsensusError{SampleId: sid, Line: info.Line})
	}
	if !strings.Contains(info.Name, info.Line) {
		return reject(ParseError, &InconsistentSampleError{SampleId: sid, Line: info.Line, Name: info.Name})
	}
	if !c.Eligible {
		return reject(NotPublished, &NotPublishedError{SampleId: sid, Line: info.Line})
	}

	var warnings []string
	if n.library.Key == "flylight_gen1_gal4" && !strings.HasSuffix(info.Line, "01") {
		warnings = append(warnings, fmt.Sprintf("Bad landing site %s", info.Line))
	}
	publishingName := info.PublishingName
	if publishingName == "" {
		publishingName = rec.PublishedName
	}
	if publishingName != "" && n.library.Gen1() {
		normalized, ok := NormalizeGen1(publishingName)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Bad publishing name %s for %s", normalized, info.Line))
		}
		publishingName = normalized
	}
	if publishingName == sample.NoConsensus {
		return reject(NoConsensus, &NoConsensusError{SampleId: sid, Line: info.Line})
	}
	if publishingName == "" {
		return n.escalate(NoPublishingName, n.policy.MissingPublishingName,
			&NoPublishingNameError{SampleId: sid, Line: info.Line}, warnings)
	}

	if (n.library.Key == "flylight_gen1_gal4" && strings.Contains(info.Line, "_L")) ||
		(n.library.Key == "flylight_gen1_lexa" && !strings.Contains(info.Line, "_L")) {
		return withWarnings(reject(BadDriver, &BadDriverError{SampleId: sid, Line: info.Line}), warnings)
	}
	driver, ok := n.drivers.Driver(info.Line)
	if !ok {
		return n.escalate(NoDriver, n.policy.MissingDriver,
			&NoDriverError{SampleId: sid, Line: info.Line}, warnings)
	}
	if !n.library.allows(driver) {
		return withWarnings(reject(BadDriver, &BadDriverError{SampleId: sid, Line: info.Line, Driver: driver}), warnings)
	}

	channel, err := ParseChannel(rec.Filepath)
	if err != nil {
		return withWarnings(reject(ParseError, err), warnings)
	}

	slideCode, gender := info.SlideCode, info.Gender
	if slideCode == "" {
		slideCode = rec.SlideCode
	}
	if gender == "" {
		gender = rec.Gender
	}
	name := LightName(LightFields{
		PublishingName: publishingName,
		SlideCode:      slideCode,
		Driver:         driver,
		Gender:         gender,
		Objective:      rec.Objective,
		Area:           rec.AnatomicalArea,
		AlignmentSpace: rec.AlignmentSpace,
		Channel:        channel,
	})
	return Result{Outcome: Accepted, Name: name, Warnings: warnings}
}

func (n *Namer) escalate(o Outcome, severity Severity, err error, warnings []string) Result {
	if n.commit && severity == Abort {
		err = Fatal(err)
	}
	return withWarnings(reject(o, err), warnings)
}

func reject(o Outcome, err error) Result {
	return Result{Outcome: o, Err: err}
}

func withWarnings(r Result, warnings []string) Result {
	r.Warnings = warnings
	return r
}

var (
	gen1Pattern = regexp.MustCompile(`^R\d+[A-H]\d+$`)
	vtPattern   = regexp.MustCompile(`^VT\d+$`)
	vtPrefix    = regexp.MustCompile(`^(VT\d+)`)
)

// NormalizeGen1 rewrites a Gen1 publishing name to its R/VT form and reports
// whether the result is well formed.
func NormalizeGen1(name string) (string, bool) {
	if strings.HasSuffix(name, "L") {
		name = strings.ReplaceAll(name, "L", "")
	}
	if strings.Contains(name, "VT") && !vtPattern.MatchString(name) {
		if m := vtPrefix.FindStringSubmatch(name); m != nil {
			name = m[1]
		}
	}
	name = strings.ReplaceAll(name, "-", "_")
	return name, gen1Pattern.MatchString(name) || vtPattern.MatchString(name)
}
