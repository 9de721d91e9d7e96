package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("cdm-manifest.json", schemaJSON)

// Load reads a JSON array of color depth MIP records, validates it and
// normalizes every record. Invalid input is fatal for the run.
func Load(r io.Reader) ([]sample.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, naming.Fatal(fmt.Errorf("manifest is not valid JSON: %w", err))
	}
	if err := schema.Validate(doc); err != nil {
		return nil, naming.Fatal(fmt.Errorf("manifest failed validation: %w", err))
	}

	var records []sample.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, naming.Fatal(err)
	}
	for i := range records {
		records[i].Normalize()
	}
	return records, nil
}

// LoadFile loads the manifest at path.
func LoadFile(path string) ([]sample.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, naming.Fatal(fmt.Errorf("error opening manifest: %w", err))
	}
	defer f.Close()
	return Load(f)
}

// Source names the manifest in library records.
func Source(path string) string {
	if strings.TrimSpace(path) == "" {
		return "JACS"
	}
	return path
}
