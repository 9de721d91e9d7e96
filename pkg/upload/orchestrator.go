package upload

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/awsutil"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/blobstore"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/dedupe"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/library"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/tally"
	log "github.com/sirupsen/logrus"
)

// Metadata is the metadata-store surface an upload run needs.
type Metadata interface {
	Sample(ctx context.Context, sampleID string) (*sample.Info, error)
	// Published reports whether SAGE flags the sample for publishing.
	Published(ctx context.Context, sampleID string) (bool, error)
	UpdatePublicURLs(ctx context.Context, mipID, imageURL, thumbnailURL string) error
	// ThumbnailExists reports whether a published thumbnail URL answers with 200.
	ThumbnailExists(ctx context.Context, thumbnailURL string) (bool, error)
}

// LibraryWriter stores the library record at the end of a committed run.
type LibraryWriter interface {
	PutLibraryRecord(ctx context.Context, table string, r library.Record) error
}

type Config struct {
	// Bucket and ThumbnailBucket are already suffixed for the manifold.
	Bucket          string
	ThumbnailBucket string
	BaseURL         string
	Manifold        string
	Tagging         string
	// Release limits publish-flagged libraries to lines in this ALPS release.
	Release string
	// Releases maps a line to the ALPS releases it is part of.
	Releases map[string][]string
	// Write commits uploads and write-backs. Without it nothing is mutated.
	Write   bool
	Rewrite bool
	// Check skips API sourced samples whose published thumbnail is already served.
	Check bool
	// Samples stops the run after this many samples. Zero means no limit.
	Samples     int
	CallTimeout time.Duration

	Source       string
	Method       library.Method
	Operator     string
	LibraryTable string
}

type Orchestrator struct {
	namer     *naming.Namer
	store     blobstore.Store
	meta      Metadata
	libraries LibraryWriter
	rc        *RunContext
	cfg       Config
	logger    log.FieldLogger

	keys           []string
	images         int
	alignmentSpace string
}

// New returns an Orchestrator. libraries may be nil.
func New(namer *naming.Namer, store blobstore.Store, meta Metadata, libraries LibraryWriter, rc *RunContext, cfg Config) *Orchestrator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.Method == "" {
		cfg.Method = library.MethodFile
	}
	return &Orchestrator{
		namer:     namer,
		store:     store,
		meta:      meta,
		libraries: libraries,
		rc:        rc,
		cfg:       cfg,
		logger:    log.WithField("library", namer.Library().Key),
	}
}

// Keys returns the primary object keys recorded this run, in upload order.
func (o *Orchestrator) Keys() []string {
	return slices.Clone(o.keys)
}

// Run processes records in order until the sample limit is reached. Only fatal
// errors stop it early.
func (o *Orchestrator) Run(ctx context.Context, records []sample.Record) (map[State]int, error) {
	states := map[State]int{}
	for _, rec := range records {
		if o.cfg.Samples > 0 && o.rc.Tally.Get(tally.Samples) >= o.cfg.Samples {
			break
		}
		if err := ctx.Err(); err != nil {
			return states, err
		}
		state, err := o.Process(ctx, rec)
		if err != nil {
			return states, err
		}
		states[state]++
	}
	return states, nil
}

// Process drives one sample to its terminal state. The returned error is
// non-nil only for fatal conditions.
func (o *Orchestrator) Process(ctx context.Context, rec sample.Record) (State, error) {
	o.rc.Tally.Inc(tally.Samples)
	logger := o.logger.WithFields(log.Fields{"mip_id": rec.Id, "sample_ref": rec.SampleRef})
	if rec.Published() && !o.cfg.Rewrite {
		o.rc.Tally.Inc(tally.AlreadyOnJACS)
		return Skipped, nil
	}
	if o.onS3(ctx, rec, logger) {
		o.rc.Tally.Inc(tally.AlreadyOnS3)
		return Skipped, nil
	}
	o.alignmentSpace = rec.AlignmentSpace

	if o.namer.Library().EM() {
		return o.processEM(ctx, rec, logger)
	}

	cand, state, err := o.candidate(ctx, rec, logger)
	if err != nil || state != nil {
		return deref(state), err
	}
	result := o.namer.Primary(cand)
	for _, w := range result.Warnings {
		logger.Warn(w)
		o.rc.errorLine("%s", w)
	}
	if !result.Accepted() {
		if naming.IsFatal(result.Err) {
			return Rejected, result.Err
		}
		o.rc.Tally.Inc(result.Outcome.String())
		o.rc.errorLine("%s", result.Err)
		logger.WithField("outcome", result.Outcome.String()).Debug(result.Err)
		return Rejected, nil
	}

	s, key, err := o.primary(ctx, rec, result.Name, logger)
	if err != nil || s != nil {
		return deref(s), err
	}
	if err := o.variants(ctx, rec, result.Name, logger); err != nil {
		return Failed, err
	}
	return o.writeBack(ctx, rec, key, logger)
}

// onS3 reports whether a checked, API sourced record's thumbnail is already
// served. Failed checks count as not served.
func (o *Orchestrator) onS3(ctx context.Context, rec sample.Record, logger log.FieldLogger) bool {
	if !o.cfg.Check || o.cfg.Method != library.MethodAPI || rec.PublicThumbnailURL == "" {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	found, err := o.meta.ThumbnailExists(cctx, rec.PublicThumbnailURL)
	if err != nil {
		logger.WithField("thumbnail_url", rec.PublicThumbnailURL).Warn("thumbnail check failed: ", err)
		return false
	}
	return found
}

func deref(s *State) State {
	if s == nil {
		return Failed
	}
	return *s
}

func stateOf(s State) *State {
	return &s
}

// candidate gathers what the naming gate needs: the metadata-store sample and,
// for publish-flagged libraries, eligibility. A non-nil state ends the sample.
func (o *Orchestrator) candidate(ctx context.Context, rec sample.Record, logger log.FieldLogger) (naming.Candidate, *State, error) {
	cand := naming.Candidate{Record: rec, Eligible: true}
	if rec.SampleRef == "" {
		return cand, nil, nil
	}
	sid := sample.Reference(rec.SampleRef)

	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	info, err := o.meta.Sample(cctx, sid)
	cancel()
	if err != nil {
		st, ferr := o.lookupFailed(err, "sample lookup", sid, logger)
		return cand, st, ferr
	}
	cand.Info = info

	lib := o.namer.Library()
	if !lib.RequiresPublishFlag() || info.Line == sample.NoConsensus {
		return cand, nil, nil
	}
	if o.cfg.Release != "" {
		releases, ok := o.cfg.Releases[info.Line]
		if !ok {
			cand.Eligible = false
			return cand, nil, nil
		}
		if !slices.Contains(releases, o.cfg.Release) {
			o.rc.Tally.Inc(tally.Skipped)
			return cand, stateOf(Skipped), nil
		}
	}

	cctx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
	published, err := o.meta.Published(cctx, sid)
	cancel()
	if err != nil {
		st, ferr := o.lookupFailed(err, "publish lookup", sid, logger)
		return cand, st, ferr
	}
	cand.Eligible = published
	return cand, nil, nil
}

func (o *Orchestrator) lookupFailed(err error, what, sid string, logger log.FieldLogger) (*State, error) {
	if naming.IsFatal(err) {
		return nil, err
	}
	o.rc.Tally.Inc(tally.LookupErrors)
	o.rc.errorLine("%s failed for sample %s: %s", what, sid, err)
	logger.WithField("sample_id", sid).Error(what+" failed: ", err)
	return stateOf(Failed), nil
}

// primary registers and transfers the primary image. A non-nil state ends the sample.
func (o *Orchestrator) primary(ctx context.Context, rec sample.Record, name string, logger log.FieldLogger) (*State, string, error) {
	key := naming.ObjectKey(rec.AlignmentSpace, o.namer.Library(), name)
	switch o.register(key, rec.Filepath, logger) {
	case dedupe.Conflict:
		return stateOf(Conflict), key, nil
	case dedupe.AlreadyUploaded:
		return stateOf(Skipped), key, nil
	}
	o.keys = append(o.keys, key)
	if err := o.transfer(ctx, rec.Filepath, key, logger); err != nil {
		if naming.IsFatal(err) {
			return nil, key, err
		}
		return stateOf(Failed), key, nil
	}
	o.images++
	return nil, key, nil
}

// register claims key for source in the run's registry, counting duplicates.
func (o *Orchestrator) register(key, source string, logger log.FieldLogger) dedupe.Outcome {
	o.rc.Tally.Inc(tally.FilesToUpload)
	outcome, previous := o.rc.Registry.Register(key, source)
	switch outcome {
	case dedupe.Conflict:
		o.rc.Tally.Inc(tally.DuplicateObjects)
		o.rc.errorLine("%s was already uploaded from %s, but is now being uploaded from %s", key, previous, source)
		logger.WithFields(log.Fields{"object_key": key, "source_path": source, "previous_source": previous}).Error("duplicate object")
	case dedupe.AlreadyUploaded:
		o.rc.Tally.Inc(tally.AlreadyUploaded)
		logger.WithField("object_key", key).Debug("already uploaded this run")
	}
	return outcome
}

// transfer uploads source to key, or only records it when not writing.
func (o *Orchestrator) transfer(ctx context.Context, source, key string, logger log.FieldLogger) error {
	logger = logger.WithFields(log.Fields{"object_key": key, "source_path": source})
	o.rc.transfer(source, o.cfg.Bucket, key)
	if !o.cfg.Write {
		logger.Info("would upload")
		o.rc.Tally.Inc(tally.Uploads)
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	err := blobstore.PutFile(cctx, o.store, key, source, blobstore.PutOptions{
		ContentType: naming.ContentType(key),
		ACL:         blobstore.ACLPublicRead,
		Tagging:     o.cfg.Tagging,
	})
	if err != nil {
		if awsutil.IsAccessDenied(err) {
			return naming.Fatal(err)
		}
		o.rc.Tally.Inc(tally.UploadErrors)
		o.rc.errorLine("could not upload %s to %s: %s", source, key, err)
		logger.Error("upload failed: ", err)
		return err
	}
	o.rc.Tally.Inc(tally.Uploads)
	return nil
}

// variants uploads the sample's ancillary files next to the primary named primaryName.
func (o *Orchestrator) variants(ctx context.Context, rec sample.Record, primaryName string, logger log.FieldLogger) error {
	for _, kind := range rec.VariantKinds() {
		source := rec.Variants[string(kind)]
		name, err := naming.VariantName(primaryName, source, kind == sample.SearchableNeurons)
		if err != nil {
			o.rc.Tally.Inc(tally.UnparsableVariant)
			o.rc.errorLine("%s", err)
			logger.WithField("source_path", source).Warn(err)
			continue
		}
		if err := o.variant(ctx, rec, kind, name, source, logger); err != nil {
			return err
		}
	}
	return nil
}

// variant registers a single ancillary file. Dedupe runs on the key without a
// subdivision so repeats of one file are recognized; only accepted files take
// a subdivision slot.
func (o *Orchestrator) variant(ctx context.Context, rec sample.Record, kind sample.VariantKind, name, source string, logger log.FieldLogger) error {
	lib := o.namer.Library()
	logical := naming.ObjectKey(rec.AlignmentSpace, lib, naming.VariantKey(kind, 0, name))
	if o.register(logical, source, logger) != dedupe.Accepted {
		return nil
	}
	subdivision := 0
	if kind == sample.SearchableNeurons {
		subdivision = o.rc.Subdivision.Assign()
	}
	key := naming.ObjectKey(rec.AlignmentSpace, lib, naming.VariantKey(kind, subdivision, name))
	if err := o.transfer(ctx, source, key, logger); err != nil && naming.IsFatal(err) {
		return err
	}
	return nil
}

// writeBack records the public URLs of an uploaded primary in JACS.
func (o *Orchestrator) writeBack(ctx context.Context, rec sample.Record, key string, logger log.FieldLogger) (State, error) {
	url := naming.PublicURL(o.cfg.BaseURL, o.cfg.Bucket, key)
	turl := naming.ThumbnailURL(url, o.cfg.Bucket, o.cfg.ThumbnailBucket)
	logger = logger.WithFields(log.Fields{"url": url, "thumbnail_url": turl})
	if !o.cfg.Write {
		logger.Info("would annotate")
		return UploadOnlyMode, nil
	}
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	if err := o.meta.UpdatePublicURLs(cctx, rec.Id, url, turl); err != nil {
		if naming.IsFatal(err) {
			return Failed, err
		}
		o.rc.Tally.Inc(tally.WriteBackErrors)
		o.rc.errorLine("could not annotate %s: %s", rec.Id, err)
		logger.Error("write-back failed: ", err)
		return Failed, nil
	}
	o.rc.Tally.Inc(tally.Annotated)
	return AnnotatedUpstream, nil
}

// processEM handles connectomics libraries. Archived images have no primary;
// every image contributes its unconverted TIFF under searchable_neurons, even
// when its primary was a duplicate or failed to upload.
func (o *Orchestrator) processEM(ctx context.Context, rec sample.Record, logger log.FieldLogger) (State, error) {
	state := UploadOnlyMode
	if rec.ImageArchivePath == "" {
		result := o.namer.Primary(naming.Candidate{Record: rec, Eligible: true})
		if !result.Accepted() {
			o.rc.Tally.Inc(result.Outcome.String())
			o.rc.errorLine("%s", result.Err)
			return Rejected, nil
		}
		s, key, err := o.primary(ctx, rec, result.Name, logger)
		if err != nil {
			return deref(s), err
		}
		if s != nil {
			state = *s
		} else if state, err = o.writeBack(ctx, rec, key, logger); err != nil {
			return state, err
		}
	}

	name, err := o.namer.Searchable(rec)
	if err != nil {
		o.rc.Tally.Inc(tally.UnparsableVariant)
		o.rc.errorLine("%s", err)
		return state, nil
	}
	if err := o.variant(ctx, rec, sample.SearchableNeurons, name, rec.Filepath, logger); err != nil {
		return Failed, err
	}
	return state, nil
}

// Finish closes out the run. API sourced runs publish the primary key list
// unless some samples were skipped as already published; committed runs also
// store the library record.
func (o *Orchestrator) Finish(ctx context.Context, now time.Time, runID string) error {
	prefix := naming.ObjectKey(o.alignmentSpace, o.namer.Library(), "")
	if o.cfg.Method == library.MethodAPI && len(o.keys) > 0 {
		if o.rc.Tally.Get(tally.AlreadyOnJACS) > 0 {
			o.logger.Warn("denormalization files will not be loaded - run the denormalizer to upload")
		} else if err := o.putKeyList(ctx, prefix); err != nil {
			return err
		}
	}
	if !o.cfg.Write || o.libraries == nil {
		return nil
	}
	record := library.Record{
		Id:         runID,
		Library:    o.namer.Library().Key,
		Manifold:   o.cfg.Manifold,
		Source:     o.cfg.Source,
		Samples:    o.rc.Tally.Get(tally.Samples),
		Images:     o.images,
		Updated:    now.UTC(),
		Operator:   o.cfg.Operator,
		Method:     o.cfg.Method,
		ObjectPath: prefix,
	}
	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	if err := o.libraries.PutLibraryRecord(cctx, o.cfg.LibraryTable, record); err != nil {
		return fmt.Errorf("could not store library record: %w", err)
	}
	return nil
}
