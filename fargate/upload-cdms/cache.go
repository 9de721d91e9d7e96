package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
)

// SampleQuery loads one metadata-store sample.
type SampleQuery func(ctx context.Context, sampleID string) (*sample.Info, error)

// SampleCache remembers sample lookups. A sample usually has several MIPs, one
// per channel and objective, so each is fetched once per run.
type SampleCache struct {
	m     sync.Map
	mutex sync.Mutex
	query SampleQuery
}

func NewSampleCache(loader SampleQuery) *SampleCache {
	return &SampleCache{
		query: loader,
	}
}

func (c *SampleCache) GetOrLoad(ctx context.Context, sampleID string) (*sample.Info, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if item, found := c.m.Load(sampleID); found {
		return item.(*sample.Info), nil
	}

	item, err := c.query(ctx, sampleID)
	if err != nil {
		return nil, fmt.Errorf("error loading sample %s: %w", sampleID, err)
	}
	c.m.LoadOrStore(sampleID, item)
	return item, nil
}
