package upload

import (
	"fmt"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/dedupe"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/partition"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/runlog"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/tally"
	log "github.com/sirupsen/logrus"
)

// RunContext is the run scoped state shared by every sample of one upload run.
type RunContext struct {
	Registry    *dedupe.Registry
	Subdivision *partition.Subdivision
	Tally       *tally.Tally
	// Errors receives one line per rejected or skipped sample. May be nil.
	Errors *runlog.File
	// Transfers is the S3CP manifest of files queued for transfer. May be nil.
	Transfers *runlog.File
}

func NewRunContext(errors, transfers *runlog.File) *RunContext {
	return &RunContext{
		Registry:    dedupe.NewRegistry(),
		Subdivision: partition.NewSubdivision(partition.DefaultLimit),
		Tally:       tally.New(tally.UploadCounters...),
		Errors:      errors,
		Transfers:   transfers,
	}
}

func (rc *RunContext) errorLine(format string, args ...any) {
	if rc.Errors == nil {
		return
	}
	if err := rc.Errors.Line(format, args...); err != nil {
		log.Error("could not write error log: ", err)
	}
}

func (rc *RunContext) transfer(localPath, bucket, key string) {
	if rc.Transfers == nil {
		return
	}
	if err := rc.Transfers.Transfer(localPath, bucket, key); err != nil {
		log.Error("could not write transfer manifest: ", err)
	}
}

// Close flushes both run logs. Empty logs are removed.
func (rc *RunContext) Close() error {
	var firstErr error
	for _, f := range []*runlog.File{rc.Errors, rc.Transfers} {
		if f == nil {
			continue
		}
		kept, err := f.Close()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing %s: %w", f.Path(), err)
		}
		if kept {
			log.WithField("path", f.Path()).Info("wrote run log")
		}
	}
	return firstErr
}
