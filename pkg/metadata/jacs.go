package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/valyala/fastjson"
)

const colorDepthImageClass = "org.janelia.model.domain.gui.cdmip.ColorDepthImage"

// JACS talks to the JACS sync services (sample data) and the JACS v2 REST API
// (color depth MIPs).
type JACS struct {
	sync *restClient
	v2   *restClient
}

func NewJACS(syncURL, v2URL, token string, timeout time.Duration, calls *CallCounter) *JACS {
	client := &http.Client{}
	return &JACS{
		sync: &restClient{name: "jacs", baseURL: syncURL, token: token, http: client, timeout: timeout, calls: calls},
		v2:   &restClient{name: "jacsv2", baseURL: v2URL, token: token, http: client, timeout: timeout, calls: calls},
	}
}

// Sample looks up the metadata-store sample with sampleID. Anything other than
// exactly one well formed sample is fatal.
func (j *JACS) Sample(ctx context.Context, sampleID string) (*sample.Info, error) {
	data, err := j.sync.do(ctx, http.MethodGet, "data/sample?sampleId="+url.QueryEscape(sampleID), nil, false)
	if err != nil {
		return nil, err
	}
	return parseSample(sampleID, data)
}

func parseSample(sampleID string, data []byte) (*sample.Info, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, naming.Fatal(fmt.Errorf("malformed sample response for %s: %w", sampleID, err))
	}
	samples, err := v.Array()
	if err != nil {
		return nil, naming.Fatal(fmt.Errorf("malformed sample response for %s: %w", sampleID, err))
	}
	switch len(samples) {
	case 0:
		return nil, naming.Fatal(fmt.Errorf("sample %s not found", sampleID))
	case 1:
	default:
		return nil, naming.Fatal(fmt.Errorf("more than one sample found for %s", sampleID))
	}
	s := samples[0]
	if !s.Exists("line") || !s.Exists("name") {
		return nil, naming.Fatal(fmt.Errorf("sample %s is missing line or name", sampleID))
	}
	return &sample.Info{
		Id:             sampleID,
		Name:           string(s.GetStringBytes("name")),
		Line:           string(s.GetStringBytes("line")),
		SlideCode:      string(s.GetStringBytes("slideCode")),
		Gender:         string(s.GetStringBytes("gender")),
		PublishingName: string(s.GetStringBytes("publishingName")),
		DataSet:        string(s.GetStringBytes("dataSet")),
	}, nil
}

// ColorDepthMIPs lists the library's MIPs in alignmentSpace.
func (j *JACS) ColorDepthMIPs(ctx context.Context, library, alignmentSpace string) ([]sample.Record, error) {
	endpoint := fmt.Sprintf("colorDepthMIPs?libraryName=%s&alignmentSpace=%s",
		url.QueryEscape(library), url.QueryEscape(alignmentSpace))
	data, err := j.v2.do(ctx, http.MethodGet, endpoint, nil, true)
	if err != nil {
		return nil, err
	}
	return parseColorDepthMIPs(data)
}

// parseColorDepthMIPs reads a colorDepthMIPs listing. Every entry needs an id
// and an alignment space.
func parseColorDepthMIPs(data []byte) ([]sample.Record, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, naming.Fatal(fmt.Errorf("malformed colorDepthMIPs response: %w", err))
	}
	items, err := v.Array()
	if err != nil {
		return nil, naming.Fatal(fmt.Errorf("malformed colorDepthMIPs response: %w", err))
	}
	records := make([]sample.Record, 0, len(items))
	for i, item := range items {
		if item.Type() != fastjson.TypeObject {
			return nil, naming.Fatal(fmt.Errorf("malformed colorDepthMIPs response: entry %d is a %s", i, item.Type()))
		}
		rec := sample.Record{
			Id:                 idString(item.Get("_id")),
			SampleRef:          string(item.GetStringBytes("sampleRef")),
			ImageName:          string(item.GetStringBytes("imageName")),
			ImageArchivePath:   string(item.GetStringBytes("imageArchivePath")),
			Filepath:           string(item.GetStringBytes("filepath")),
			AlignmentSpace:     string(item.GetStringBytes("alignmentSpace")),
			PublishedName:      string(item.GetStringBytes("publishedName")),
			SlideCode:          string(item.GetStringBytes("slideCode")),
			Gender:             string(item.GetStringBytes("gender")),
			Objective:          string(item.GetStringBytes("objective")),
			AnatomicalArea:     string(item.GetStringBytes("anatomicalArea")),
			Channel:            item.GetInt("channelNumber"),
			PublicImageURL:     string(item.GetStringBytes("publicImageUrl")),
			PublicThumbnailURL: string(item.GetStringBytes("publicThumbnailUrl")),
		}
		if rec.Id == "" || rec.AlignmentSpace == "" {
			return nil, naming.Fatal(fmt.Errorf("malformed colorDepthMIPs response: entry %d has no _id or alignmentSpace", i))
		}
		if variants := item.GetObject("variants"); variants != nil {
			rec.Variants = map[string]string{}
			variants.Visit(func(key []byte, v *fastjson.Value) {
				if path, err := v.StringBytes(); err == nil {
					rec.Variants[string(key)] = string(path)
				}
			})
		}
		rec.Normalize()
		records = append(records, rec)
	}
	return records, nil
}

// idString accepts ids serialized either as strings or as bare numbers.
func idString(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.String()
	}
	return ""
}

// ThumbnailExists reports whether a published thumbnail is already served.
func (j *JACS) ThumbnailExists(ctx context.Context, thumbnailURL string) (bool, error) {
	return j.v2.exists(ctx, thumbnailURL)
}

// UpdatePublicURLs records where a MIP and its thumbnail were published.
func (j *JACS) UpdatePublicURLs(ctx context.Context, mipID, imageURL, thumbnailURL string) error {
	body, err := json.Marshal(map[string]string{
		"class":              colorDepthImageClass,
		"publicImageUrl":     imageURL,
		"publicThumbnailUrl": thumbnailURL,
	})
	if err != nil {
		return err
	}
	_, err = j.v2.do(ctx, http.MethodPut, "colorDepthMIPs/"+url.PathEscape(mipID)+"/publicURLs", body, true)
	return err
}
