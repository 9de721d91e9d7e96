package tally

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Counter names printed in the operator summary.
const (
	Uploads           = "Amazon S3 uploads"
	FilesToUpload     = "Files to upload"
	Samples           = "Samples"
	NoConsensus       = "No Consensus"
	NoSampleRef       = "No sampleRef"
	NoPublishingName  = "No publishing name"
	NoDriver          = "No driver"
	NotPublished      = "Not published"
	Skipped           = "Skipped"
	AlreadyOnS3       = "Already on S3"
	AlreadyOnJACS     = "Already on JACS"
	BadDriver         = "Bad driver"
	BadChannel        = "Bad channel"
	DuplicateObjects  = "Duplicate objects"
	AlreadyUploaded   = "Already uploaded"
	UnparsableVariant = "Unparsable variants"
	UploadErrors      = "Upload errors"
	WriteBackErrors   = "Write-back errors"
	LookupErrors      = "Metadata lookup errors"
	Annotated         = "Annotated in JACS"
)

// UploadCounters is the fixed counter set of an upload run.
var UploadCounters = []string{
	Uploads, FilesToUpload, Samples, NoConsensus, NoSampleRef, NoPublishingName,
	NoDriver, NotPublished, Skipped, AlreadyOnS3, AlreadyOnJACS, BadDriver, BadChannel,
	DuplicateObjects, AlreadyUploaded, UnparsableVariant, UploadErrors, WriteBackErrors, LookupErrors, Annotated,
}

// Tally is a set of named counters. Unknown names are created on first use.
type Tally struct {
	mutex  sync.Mutex
	counts map[string]int
	vec    *prometheus.CounterVec
}

func New(names ...string) *Tally {
	t := &Tally{
		counts: make(map[string]int, len(names)),
		vec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdm",
			Name:      "upload_events_total",
			Help:      "Upload pipeline events by counter name.",
		}, []string{"counter"}),
	}
	for _, n := range names {
		t.counts[n] = 0
		t.vec.WithLabelValues(n)
	}
	return t
}

func (t *Tally) Inc(name string) {
	t.Add(name, 1)
}

func (t *Tally) Add(name string, n int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.counts[name] += n
	t.vec.WithLabelValues(name).Add(float64(n))
}

func (t *Tally) Get(name string) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.counts[name]
}

// Snapshot returns a copy of all counters.
func (t *Tally) Snapshot() map[string]int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Print writes every counter, sorted by name, to w.
func (t *Tally) Print(w io.Writer) error {
	snapshot := t.Snapshot()
	names := make([]string, 0, len(snapshot))
	for n := range snapshot {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := fmt.Fprintf(w, "%-22s %s\n", n+":", humanize.Comma(int64(snapshot[n]))); err != nil {
			return err
		}
	}
	return nil
}

// Push sends the counters to a Prometheus Pushgateway.
func (t *Tally) Push(ctx context.Context, url, job string, labels map[string]string) error {
	pusher := push.New(url, job).Collector(t.vec)
	for k, v := range labels {
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("error pushing metrics to %s: %w", url, err)
	}
	return nil
}
