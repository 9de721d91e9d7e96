package denormalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/awsutil"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/blobstore"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/denormalized"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/notify"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/partition"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const publicPrefixFormat = "https://%s.s3.amazonaws.com/%s"

// Mode selects how distributed buckets reach their KEYS shards.
type Mode string

const (
	// ModeOrder stages the key list locally and writes an order file for an external copy tool.
	ModeOrder Mode = "order"
	// ModeCopy uploads the key list once and copies it to every shard.
	ModeCopy Mode = "copy"
)

// Distributed lists the buckets whose key list is sharded under KEYS/.
var Distributed = map[string]bool{
	string(sample.SearchableNeurons): true,
}

// EmptyLibraryError is returned when nothing sits directly under template/library.
type EmptyLibraryError struct {
	Bucket   string
	Template string
	Library  string
}

func (e *EmptyLibraryError) Error() string {
	return fmt.Sprintf("%s/%s was not found in the %s bucket", e.Template, e.Library, e.Bucket)
}

func (e *EmptyLibraryError) Unwrap() error {
	return naming.ErrFatal
}

type SummaryWriter interface {
	PutDenormalizedSummary(ctx context.Context, table string, s denormalized.Summary) error
}

type Notifier interface {
	PublishDenormalized(ctx context.Context, msg notify.LibraryDenormalized) error
}

type Config struct {
	Template     string
	Library      string
	SummaryTable string
	Tagging      string
	Mode         Mode
	// OrderDir receives staged key lists and order files. Defaults to os.TempDir().
	OrderDir string
	// Test computes everything but writes nothing to the bucket or the summary table.
	Test            bool
	CallTimeout     time.Duration
	CopyConcurrency int
	Rand            *rand.Rand
}

// Result describes one denormalization pass.
type Result struct {
	Summary   denormalized.Summary
	Manifests map[string]denormalized.Manifest
	PutErrors int
}

type Denormalizer struct {
	store     blobstore.Store
	summaries SummaryWriter
	notifier  Notifier
	cfg       Config
	logger    log.FieldLogger
}

// New returns a Denormalizer for cfg.Template/cfg.Library in store. summaries
// and notifier may be nil.
func New(store blobstore.Store, summaries SummaryWriter, notifier Notifier, cfg Config) *Denormalizer {
	if cfg.Mode == "" {
		cfg.Mode = ModeOrder
	}
	if cfg.OrderDir == "" {
		cfg.OrderDir = os.TempDir()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.CopyConcurrency <= 0 {
		cfg.CopyConcurrency = 10
	}
	return &Denormalizer{
		store:     store,
		summaries: summaries,
		notifier:  notifier,
		cfg:       cfg,
		logger: log.WithFields(log.Fields{
			"bucket":   store.Bucket(),
			"template": cfg.Template,
			"library":  cfg.Library,
		}),
	}
}

func (d *Denormalizer) libraryPrefix() string {
	return d.cfg.Template + "/" + d.cfg.Library
}

// Collect lists the library prefix and groups keys by bucket. Manifests, count
// files and derived paths are left out.
func (d *Denormalizer) Collect(ctx context.Context) (map[string][]string, error) {
	buckets := map[string][]string{}
	err := blobstore.Walk(ctx, d.store, d.libraryPrefix()+"/", func(o blobstore.Object) error {
		if excluded(o.Key) {
			return nil
		}
		which := bucketOf(o.Key)
		buckets[which] = append(buckets[which], o.Key)
		return nil
	})
	if err != nil {
		if awsutil.IsAccessDenied(err) {
			return nil, naming.Fatal(err)
		}
		return nil, err
	}
	return buckets, nil
}

func excluded(key string) bool {
	return strings.Contains(key, denormalized.KeyFile) ||
		strings.Contains(key, denormalized.CountFile) ||
		strings.Contains(key, "/pngs/") ||
		strings.Contains(key, "/KEYS/")
}

func bucketOf(key string) string {
	segments := strings.Split(key, "/")
	if len(segments) >= 4 {
		return segments[2]
	}
	return denormalized.DefaultBucket
}

// Run performs a full pass: collect, shuffle, write manifests and count files,
// then record and announce the summary.
func (d *Denormalizer) Run(ctx context.Context) (*Result, error) {
	buckets, err := d.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if len(buckets[denormalized.DefaultBucket]) == 0 {
		return nil, &EmptyLibraryError{Bucket: d.store.Bucket(), Template: d.cfg.Template, Library: d.cfg.Library}
	}

	names := make([]string, 0, len(buckets))
	for which := range buckets {
		names = append(names, which)
	}
	sort.Strings(names)

	result := &Result{
		Summary: denormalized.Summary{
			KeyName:     d.cfg.Library,
			Subprefixes: map[string]denormalized.Subprefix{},
		},
		Manifests: map[string]denormalized.Manifest{},
	}
	for _, which := range names {
		m, err := d.writeBucket(ctx, which, buckets[which], result)
		if err != nil {
			return nil, err
		}
		result.Manifests[which] = m
		publicPrefix := fmt.Sprintf(publicPrefixFormat, d.store.Bucket(), m.Prefix)
		if which == denormalized.DefaultBucket {
			result.Summary.Count = m.Count
			result.Summary.Prefix = publicPrefix
			continue
		}
		result.Summary.Subprefixes[which] = denormalized.Subprefix{
			Count:      m.Count,
			Prefix:     publicPrefix,
			BatchSize:  m.BatchSize,
			NumBatches: m.NumBatches,
		}
	}

	if d.cfg.Test {
		return result, nil
	}
	if d.summaries != nil {
		if err := d.summaries.PutDenormalizedSummary(ctx, d.cfg.SummaryTable, result.Summary); err != nil {
			return result, fmt.Errorf("error writing summary for %s: %w", d.cfg.Library, err)
		}
	}
	if d.notifier != nil {
		msg := notify.LibraryDenormalized{Bucket: d.store.Bucket(), Summary: result.Summary}
		if err := d.notifier.PublishDenormalized(ctx, msg); err != nil {
			d.logger.Warn("summary notification failed: ", err)
		}
	}
	return result, nil
}

func (d *Denormalizer) writeBucket(ctx context.Context, which string, keys []string, result *Result) (denormalized.Manifest, error) {
	prefix := d.libraryPrefix()
	if which != denormalized.DefaultBucket {
		prefix += "/" + which
	}
	partition.Shuffle(keys, d.cfg.Rand)
	m := denormalized.Manifest{
		Bucket: d.store.Bucket(),
		Prefix: prefix,
		Keys:   keys,
		Count:  len(keys),
	}
	d.logger.WithFields(log.Fields{"subprefix": which, "count": m.Count}).Info("objects")

	body, err := prettyJSON(keys)
	if err != nil {
		return m, err
	}
	if Distributed[which] {
		m.BatchSize, m.NumBatches = partition.Batches(m.Count)
		if err := d.distribute(ctx, which, body, &m, result); err != nil {
			return m, err
		}
	} else if err := d.put(ctx, prefix+"/"+denormalized.KeyFile, body, result); err != nil {
		return m, err
	}

	counts, err := prettyJSON(denormalized.Counts{ObjectCount: m.Count})
	if err != nil {
		return m, err
	}
	return m, d.put(ctx, prefix+"/"+denormalized.CountFile, counts, result)
}

func (d *Denormalizer) distribute(ctx context.Context, which string, body []byte, m *denormalized.Manifest, result *Result) error {
	switch d.cfg.Mode {
	case ModeCopy:
		source := m.Prefix + "/" + denormalized.KeyFile
		if err := d.put(ctx, source, body, result); err != nil || d.cfg.Test {
			return err
		}
		return d.copyShards(ctx, source, m.Prefix, result)
	default:
		orderFile, err := d.writeOrderFile(which, body, m.Prefix)
		if err != nil {
			return err
		}
		m.OrderFile = orderFile
		return nil
	}
}

// writeOrderFile stages body in OrderDir and writes the chunk table an external
// copy tool uses to place it under every KEYS shard.
func (d *Denormalizer) writeOrderFile(which string, body []byte, prefix string) (string, error) {
	stem := filepath.Join(d.cfg.OrderDir, uuid.NewString()+"_"+which)
	sourceFile := stem + ".txt"
	d.logger.WithField("source_file", sourceFile).Info("writing staged key list")
	if err := os.WriteFile(sourceFile, body, 0o644); err != nil {
		return "", err
	}

	orderFile := stem + ".order"
	d.logger.WithField("order_file", orderFile).Info("writing order file")
	f, err := os.Create(orderFile)
	if err != nil {
		return "", err
	}
	if err := partition.WriteOrderFile(f, partition.ChunkTable(sourceFile, d.store.Bucket(), prefix)); err != nil {
		f.Close()
		return "", err
	}
	return orderFile, f.Close()
}

func (d *Denormalizer) copyShards(ctx context.Context, source, prefix string, result *Result) error {
	opts := d.putOptions()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.CopyConcurrency)
	failures := make([]error, partition.OrderChunks)
	for chunk := 0; chunk < partition.OrderChunks; chunk++ {
		dst := partition.DestinationKey(prefix, chunk)
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, d.cfg.CallTimeout)
			defer cancel()
			err := d.store.Copy(cctx, source, dst, opts)
			if err != nil && awsutil.IsAccessDenied(err) {
				return naming.Fatal(err)
			}
			failures[chunk] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for chunk, err := range failures {
		if err != nil {
			result.PutErrors++
			d.logger.WithField("object_key", partition.DestinationKey(prefix, chunk)).Error("could not copy key list: ", err)
		}
	}
	return nil
}

func (d *Denormalizer) putOptions() blobstore.PutOptions {
	return blobstore.PutOptions{
		ContentType: "application/json",
		ACL:         blobstore.ACLPublicRead,
		Tagging:     d.cfg.Tagging,
	}
}

// put uploads body to key. Failures are counted and logged; only authorization
// failures stop the pass.
func (d *Denormalizer) put(ctx context.Context, key string, body []byte, result *Result) error {
	logger := d.logger.WithField("object_key", key)
	if d.cfg.Test {
		logger.Warn("would have uploaded")
		return nil
	}
	logger.Info("uploading")
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()
	if err := d.store.Put(ctx, key, bytes.NewReader(body), d.putOptions()); err != nil {
		if awsutil.IsAccessDenied(err) {
			return naming.Fatal(err)
		}
		result.PutErrors++
		logger.Error("upload failed: ", err)
	}
	return nil
}

func prettyJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
