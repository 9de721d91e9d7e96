package denormalize

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"os"
	"strings"
	"testing"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/blobstore"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/denormalized"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/notify"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/partition"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	template = "JRC2018_Unisex_20x_HR"
	library  = "FlyLight_Split-GAL4_Drivers"
	tagging  = "PROJECT=CDCS&STAGE=dev&DEVELOPER=jdoe&VERSION=1.1.0"
)

type MockSummaries struct {
	tables    []string
	summaries []denormalized.Summary
}

func (m *MockSummaries) PutDenormalizedSummary(ctx context.Context, table string, s denormalized.Summary) error {
	m.tables = append(m.tables, table)
	m.summaries = append(m.summaries, s)
	return nil
}

type MockNotifier struct {
	messages []notify.LibraryDenormalized
}

func (m *MockNotifier) PublishDenormalized(ctx context.Context, msg notify.LibraryDenormalized) error {
	m.messages = append(m.messages, msg)
	return nil
}

func seed(t *testing.T, store *blobstore.MemoryStore, keys ...string) {
	for _, k := range keys {
		require.NoError(t, store.Put(context.Background(), k, strings.NewReader("x"), blobstore.PutOptions{}))
	}
}

func libraryFixture(t *testing.T) *blobstore.MemoryStore {
	store := blobstore.NewMemoryStore("janelia-flylight-color-depth-dev", 2)
	seed(t, store,
		template+"/"+library+"/a-CDM_1.png",
		template+"/"+library+"/b-CDM_1.png",
		template+"/"+library+"/c-CDM_2.png",
		template+"/"+library+"/"+denormalized.KeyFile,
		template+"/"+library+"/"+denormalized.CountFile,
		template+"/"+library+"/gradient/a-CDM_1.png",
		template+"/"+library+"/searchable_neurons/1/a-CDM_1-01.tif",
		template+"/"+library+"/searchable_neurons/1/a-CDM_1-02.tif",
		template+"/"+library+"/searchable_neurons/pngs/a-CDM_1-01.png",
		template+"/"+library+"/searchable_neurons/KEYS/0/"+denormalized.KeyFile,
		template+"/Other_Library/z-CDM_1.png",
	)
	return store
}

func newConfig(t *testing.T) Config {
	return Config{
		Template:     template,
		Library:      library,
		SummaryTable: "cdm_denormalized",
		Tagging:      tagging,
		OrderDir:     t.TempDir(),
		Rand:         rand.New(rand.NewPCG(1, 2)),
	}
}

func readKeys(t *testing.T, store *blobstore.MemoryStore, key string) []string {
	o, ok := store.Object(key)
	require.True(t, ok, key)
	var keys []string
	require.NoError(t, json.Unmarshal(o.Data, &keys))
	return keys
}

func readCount(t *testing.T, store *blobstore.MemoryStore, key string) int {
	o, ok := store.Object(key)
	require.True(t, ok, key)
	var counts denormalized.Counts
	require.NoError(t, json.Unmarshal(o.Data, &counts))
	return counts.ObjectCount
}

func TestDenormalizer(t *testing.T) {
	for scenario, fn := range map[string]func(tt *testing.T){
		"writes manifests and counts":      testWritesManifests,
		"order mode stages shards locally": testOrderMode,
		"copy mode fills every shard":      testCopyMode,
		"test mode writes nothing":         testTestMode,
		"empty default bucket is fatal":    testEmptyDefault,
		"put failures are counted":         testPutFailure,
		"access denied is fatal":           testAccessDenied,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t)
		})
	}
}

func testWritesManifests(t *testing.T) {
	store := libraryFixture(t)
	summaries := &MockSummaries{}
	notifier := &MockNotifier{}

	result, err := New(store, summaries, notifier, newConfig(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, store.ListCalls(), 1, "listing must follow continuation tokens")

	prefix := template + "/" + library
	assert.ElementsMatch(t, []string{
		prefix + "/a-CDM_1.png",
		prefix + "/b-CDM_1.png",
		prefix + "/c-CDM_2.png",
	}, readKeys(t, store, prefix+"/"+denormalized.KeyFile))
	assert.Equal(t, 3, readCount(t, store, prefix+"/"+denormalized.CountFile))
	assert.Equal(t, []string{prefix + "/gradient/a-CDM_1.png"}, readKeys(t, store, prefix+"/gradient/"+denormalized.KeyFile))
	assert.Equal(t, 2, readCount(t, store, prefix+"/searchable_neurons/"+denormalized.CountFile))

	o, _ := store.Object(prefix + "/" + denormalized.KeyFile)
	assert.Equal(t, blobstore.ACLPublicRead, o.Options.ACL)
	assert.Equal(t, tagging, o.Options.Tagging)
	assert.Equal(t, "application/json", o.Options.ContentType)
	assert.True(t, strings.HasPrefix(string(o.Data), "[\n    \""))

	want := denormalized.Summary{
		KeyName: library,
		Count:   3,
		Prefix:  "https://janelia-flylight-color-depth-dev.s3.amazonaws.com/" + prefix,
		Subprefixes: map[string]denormalized.Subprefix{
			"gradient": {
				Count:  1,
				Prefix: "https://janelia-flylight-color-depth-dev.s3.amazonaws.com/" + prefix + "/gradient",
			},
			"searchable_neurons": {
				Count:      2,
				Prefix:     "https://janelia-flylight-color-depth-dev.s3.amazonaws.com/" + prefix + "/searchable_neurons",
				BatchSize:  1,
				NumBatches: 2,
			},
		},
	}
	assert.Equal(t, want, result.Summary)
	require.Len(t, summaries.summaries, 1)
	assert.Equal(t, want, summaries.summaries[0])
	assert.Equal(t, []string{"cdm_denormalized"}, summaries.tables)
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "janelia-flylight-color-depth-dev", notifier.messages[0].Bucket)
	assert.Zero(t, result.PutErrors)
}

func testOrderMode(t *testing.T) {
	store := libraryFixture(t)
	result, err := New(store, nil, nil, newConfig(t)).Run(context.Background())
	require.NoError(t, err)

	prefix := template + "/" + library + "/searchable_neurons"
	_, uploaded := store.Object(prefix + "/" + denormalized.KeyFile)
	assert.False(t, uploaded, "distributed key lists are staged, not uploaded")

	m := result.Manifests["searchable_neurons"]
	require.NotEmpty(t, m.OrderFile)
	data, err := os.ReadFile(m.OrderFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, partition.OrderChunks)

	source := strings.Split(lines[0], "\t")[0]
	staged, err := os.ReadFile(source)
	require.NoError(t, err)
	var keys []string
	require.NoError(t, json.Unmarshal(staged, &keys))
	assert.ElementsMatch(t, m.Keys, keys)

	for i, line := range lines {
		fields := strings.Split(line, "\t")
		require.Len(t, fields, 2)
		assert.Equal(t, source, fields[0])
		assert.Equal(t, "janelia-flylight-color-depth-dev/"+partition.DestinationKey(prefix, i), fields[1])
	}
}

func testCopyMode(t *testing.T) {
	store := libraryFixture(t)
	cfg := newConfig(t)
	cfg.Mode = ModeCopy
	result, err := New(store, nil, nil, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Manifests["searchable_neurons"].OrderFile)

	prefix := template + "/" + library + "/searchable_neurons"
	source, ok := store.Object(prefix + "/" + denormalized.KeyFile)
	require.True(t, ok)
	for chunk := 0; chunk < partition.OrderChunks; chunk++ {
		o, ok := store.Object(partition.DestinationKey(prefix, chunk))
		require.True(t, ok, chunk)
		assert.Equal(t, source.Data, o.Data)
		assert.Equal(t, blobstore.ACLPublicRead, o.Options.ACL)
	}
}

func testTestMode(t *testing.T) {
	store := libraryFixture(t)
	before := store.Keys()
	summaries := &MockSummaries{}
	cfg := newConfig(t)
	cfg.Test = true

	result, err := New(store, summaries, &MockNotifier{}, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summary.Count)
	assert.Equal(t, before, store.Keys())
	assert.Empty(t, summaries.summaries)
}

func testEmptyDefault(t *testing.T) {
	store := blobstore.NewMemoryStore("janelia-flylight-color-depth", 0)
	seed(t, store, template+"/"+library+"/gradient/a-CDM_1.png")
	before := store.Keys()
	summaries := &MockSummaries{}

	result, err := New(store, summaries, nil, newConfig(t)).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, naming.IsFatal(err))
	var empty *EmptyLibraryError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, library, empty.Library)
	assert.Equal(t, before, store.Keys())
	assert.Empty(t, summaries.summaries)
}

func testPutFailure(t *testing.T) {
	store := libraryFixture(t)
	prefix := template + "/" + library
	store.FailPut(prefix+"/gradient/"+denormalized.KeyFile, errors.New("connection reset"))

	result, err := New(store, nil, nil, newConfig(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PutErrors)
	assert.Equal(t, 1, readCount(t, store, prefix+"/gradient/"+denormalized.CountFile))
}

func testAccessDenied(t *testing.T) {
	store := libraryFixture(t)
	store.FailPut(template+"/"+library+"/"+denormalized.KeyFile, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"})

	_, err := New(store, nil, nil, newConfig(t)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, naming.IsFatal(err))
}

func TestBucketOf(t *testing.T) {
	assert.Equal(t, "default", bucketOf(template+"/"+library+"/a.png"))
	assert.Equal(t, "gradient", bucketOf(template+"/"+library+"/gradient/a.png"))
	assert.Equal(t, "searchable_neurons", bucketOf(template+"/"+library+"/searchable_neurons/3/a.tif"))
	assert.True(t, excluded(template+"/"+library+"/searchable_neurons/pngs/a.png"))
	assert.False(t, excluded(template+"/"+library+"/a.png"))
}
