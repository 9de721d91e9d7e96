package tally

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTally(t *testing.T) {
	tally := New(UploadCounters...)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tally.Inc(Samples)
		}()
	}
	wg.Wait()
	tally.Add(Uploads, 1234)

	assert.Equal(t, 50, tally.Get(Samples))
	assert.Equal(t, 0, tally.Get(NoDriver))
	assert.Len(t, tally.Snapshot(), len(UploadCounters))

	var buf bytes.Buffer
	require.NoError(t, tally.Print(&buf))
	assert.Contains(t, buf.String(), "Amazon S3 uploads:     1,234\n")
	assert.Equal(t, len(UploadCounters), strings.Count(buf.String(), "\n"))
}

func TestTally_Push(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/metrics/job/upload_cdms/library/flyem_hemibrain")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tally := New(Uploads)
	tally.Inc(Uploads)
	require.NoError(t, tally.Push(context.Background(), server.URL, "upload_cdms", map[string]string{"library": "flyem_hemibrain"}))
	assert.NotEmpty(t, body)
}
