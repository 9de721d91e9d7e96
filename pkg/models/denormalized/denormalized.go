package denormalized

const (
	KeyFile   = "keys_denormalized.json"
	CountFile = "counts_denormalized.json"

	// DefaultBucket collects objects that sit directly under the library prefix.
	DefaultBucket = "default"
)

// Counts is the body of counts_denormalized.json.
type Counts struct {
	ObjectCount int `json:"objectCount"`
}

// Manifest is the denormalized view of one bucket under a template/library prefix.
type Manifest struct {
	Bucket     string   `json:"bucket"`
	Prefix     string   `json:"prefix"`
	Keys       []string `json:"keys"`
	Count      int      `json:"count"`
	BatchSize  int      `json:"batch_size,omitempty"`
	NumBatches int      `json:"num_batches,omitempty"`
	OrderFile  string   `json:"order_file,omitempty"`
}

// Subprefix is the per-bucket entry of a Summary.
type Subprefix struct {
	Count      int    `dynamodbav:"count" json:"count"`
	Prefix     string `dynamodbav:"prefix" json:"prefix"`
	BatchSize  int    `dynamodbav:"batch_size,omitempty" json:"batch_size,omitempty"`
	NumBatches int    `dynamodbav:"num_batches,omitempty" json:"num_batches,omitempty"`
}

// Summary is the discovery record written to the cdm_denormalized table.
type Summary struct {
	KeyName     string               `dynamodbav:"keyname" json:"keyname"`
	Count       int                  `dynamodbav:"count" json:"count"`
	Prefix      string               `dynamodbav:"prefix" json:"prefix"`
	Subprefixes map[string]Subprefix `dynamodbav:"subprefixes" json:"subprefixes"`
}
