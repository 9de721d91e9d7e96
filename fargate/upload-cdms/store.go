package main

import (
	"context"
	"fmt"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/metadata"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/sagedb"
)

// UploadCdmsStore combines JACS and SAGE into the metadata surface of an upload run.
type UploadCdmsStore struct {
	jacs    *metadata.JACS
	samples *SampleCache
	sage    *sagedb.Manager
	calls   *metadata.CallCounter
}

// NewUploadCdmsStore returns a store. sage may be nil for libraries that need
// neither drivers nor publish flags.
func NewUploadCdmsStore(jacs *metadata.JACS, sage *sagedb.Manager, calls *metadata.CallCounter) *UploadCdmsStore {
	return &UploadCdmsStore{
		jacs:    jacs,
		samples: NewSampleCache(jacs.Sample),
		sage:    sage,
		calls:   calls,
	}
}

func (s *UploadCdmsStore) Sample(ctx context.Context, sampleID string) (*sample.Info, error) {
	return s.samples.GetOrLoad(ctx, sampleID)
}

func (s *UploadCdmsStore) Published(ctx context.Context, sampleID string) (bool, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return false, err
	}
	return q.IsPublished(ctx, sampleID)
}

func (s *UploadCdmsStore) UpdatePublicURLs(ctx context.Context, mipID, imageURL, thumbnailURL string) error {
	return s.jacs.UpdatePublicURLs(ctx, mipID, imageURL, thumbnailURL)
}

func (s *UploadCdmsStore) ThumbnailExists(ctx context.Context, thumbnailURL string) (bool, error) {
	return s.jacs.ThumbnailExists(ctx, thumbnailURL)
}

// Drivers returns the SAGE line to driver mapping.
func (s *UploadCdmsStore) Drivers(ctx context.Context) (map[string]string, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return nil, err
	}
	return q.Drivers(ctx)
}

// Releases returns the SAGE line to ALPS releases mapping.
func (s *UploadCdmsStore) Releases(ctx context.Context) (map[string][]string, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return nil, err
	}
	return q.Releases(ctx)
}

func (s *UploadCdmsStore) queries(ctx context.Context) (*sagedb.Queries, error) {
	if s.sage == nil {
		return nil, fmt.Errorf("SAGE is not configured")
	}
	s.calls.Inc("sage")
	return s.sage.Queries(ctx)
}
