package metadata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/valyala/fastjson"
)

// ConfigService reads named configurations from the Janelia config server.
type ConfigService struct {
	client *restClient
}

func NewConfigService(baseURL string, timeout time.Duration, calls *CallCounter) *ConfigService {
	return &ConfigService{
		client: &restClient{name: "config", baseURL: baseURL, http: &http.Client{}, timeout: timeout, calls: calls},
	}
}

// Libraries returns the CDM library registry, library key to display name.
func (c *ConfigService) Libraries(ctx context.Context) (map[string]string, error) {
	data, err := c.client.do(ctx, http.MethodGet, "config/cdm_libraries", nil, false)
	if err != nil {
		return nil, naming.Fatal(err)
	}
	return parseLibraries(data)
}

func parseLibraries(data []byte) (map[string]string, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, naming.Fatal(fmt.Errorf("malformed cdm_libraries response: %w", err))
	}
	cv := v.Get("config")
	if cv == nil || cv.Type() != fastjson.TypeObject {
		return nil, naming.Fatal(fmt.Errorf("cdm_libraries response has no config object"))
	}
	cfg, _ := cv.Object()
	libraries := map[string]string{}
	cfg.Visit(func(key []byte, val *fastjson.Value) {
		switch val.Type() {
		case fastjson.TypeString:
			libraries[string(key)] = string(val.GetStringBytes())
		case fastjson.TypeObject:
			// newer entries carry {"name": ..., ...}
			if name := val.GetStringBytes("name"); name != nil {
				libraries[string(key)] = string(name)
			}
		}
	})
	return libraries, nil
}
