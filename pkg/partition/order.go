package partition

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/denormalized"
)

// OrderChunks is the number of shard copies written for a distributed manifest.
const OrderChunks = 100

// Shuffle permutes keys in place.
func Shuffle(keys []string, rng *rand.Rand) {
	if rng == nil {
		rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		return
	}
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
}

// Batches sizes count keys into at most OrderChunks batches.
func Batches(count int) (batchSize, numBatches int) {
	if count <= 0 {
		return 0, 0
	}
	batchSize = (count + OrderChunks - 1) / OrderChunks
	numBatches = (count + batchSize - 1) / batchSize
	return batchSize, numBatches
}

// Chunk is one line of an order file: copy Source to Destination.
type Chunk struct {
	Index       int
	Source      string
	Destination string
}

// DestinationKey is the object key of shard chunk under prefix.
func DestinationKey(prefix string, chunk int) string {
	return fmt.Sprintf("%s/KEYS/%d/%s", prefix, chunk, denormalized.KeyFile)
}

// ChunkTable returns the OrderChunks copies of sourceFile under bucket/prefix.
func ChunkTable(sourceFile, bucket, prefix string) []Chunk {
	chunks := make([]Chunk, OrderChunks)
	for i := range chunks {
		chunks[i] = Chunk{
			Index:       i,
			Source:      sourceFile,
			Destination: fmt.Sprintf("%s/%s", bucket, DestinationKey(prefix, i)),
		}
	}
	return chunks
}

// WriteOrderFile writes chunks as tab separated source/destination lines.
func WriteOrderFile(w io.Writer, chunks []Chunk) error {
	bw := bufio.NewWriter(w)
	for _, c := range chunks {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", c.Source, c.Destination); err != nil {
			return err
		}
	}
	return bw.Flush()
}
