package main

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSampleMap = map[string]*sample.Info{
	uuid.NewString(): {
		Name:           "JRC_SS12345-20121003_31_B2",
		Line:           "JRC_SS12345",
		PublishingName: "SS12345",
	},
	uuid.NewString(): {
		Name: "R10A06_AD-20170303_31_B2",
		Line: "R10A06_AD",
	},
}

func TestSampleCache_ConcurrentAccess(t *testing.T) {
	var actualQueryHits atomic.Int32
	cacheUnderTest := NewSampleCache(func(ctx context.Context, sampleID string) (*sample.Info, error) {
		actualQueryHits.Add(1)
		time.Sleep(time.Duration(rand.Int63n(50)+1) * time.Millisecond)
		return testSampleMap[sampleID], nil
	})

	routines := 100
	var wg sync.WaitGroup
	for sampleID, expected := range testSampleMap {
		for i := 0; i < routines; i++ {
			wg.Add(1)
			go func(sampleID string, expected *sample.Info) {
				defer wg.Done()
				item, err := cacheUnderTest.GetOrLoad(context.Background(), sampleID)
				assert.NoError(t, err)
				assert.Equal(t, expected, item)
			}(sampleID, expected)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(len(testSampleMap)), actualQueryHits.Load())
}

func TestSampleCache_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	cacheUnderTest := NewSampleCache(func(ctx context.Context, sampleID string) (*sample.Info, error) {
		calls++
		if calls == 1 {
			return nil, naming.Fatal(errors.New("more than one sample found"))
		}
		return &sample.Info{Line: "JRC_SS12345"}, nil
	})

	_, err := cacheUnderTest.GetOrLoad(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, naming.IsFatal(err), "wrapping must keep the fatal marker")

	item, err := cacheUnderTest.GetOrLoad(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "JRC_SS12345", item.Line)
	assert.Equal(t, 2, calls)
}
