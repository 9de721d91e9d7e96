package awsutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Manifold is a deployment stage. Every stage but prod publishes into its own
// "-<manifold>" suffixed buckets.
type Manifold struct {
	Name     string
	FullName string
}

const (
	Prod    = "prod"
	Staging = "staging"
	Dev     = "dev"
)

var Manifolds = map[string]Manifold{
	Prod:    {Prod, "Production"},
	Staging: {Staging, "Staging"},
	Dev:     {Dev, "Development"},
}

// GetManifold looks up a manifold by name.
func GetManifold(name string) (Manifold, error) {
	m, ok := Manifolds[strings.ToLower(name)]
	if !ok {
		return Manifold{}, fmt.Errorf("unknown manifold %s", name)
	}
	return m, nil
}

// Bucket returns the bucket name for base in this manifold.
func (m Manifold) Bucket(base string) string {
	if m.Name == Prod {
		return base
	}
	return base + "-" + m.Name
}

// AssumesRole reports whether the manifold writes through the publishing role.
func (m Manifold) AssumesRole() bool {
	return m.Name != Dev
}

// ManifoldFromBucket infers the manifold from a bucket's suffix.
func ManifoldFromBucket(bucket string) Manifold {
	tokens := strings.Split(bucket, "-")
	if m, ok := Manifolds[strings.ToLower(tokens[len(tokens)-1])]; ok {
		return m
	}
	return Manifolds[Prod]
}

// Tagging builds the object tag set attached to every upload.
func Tagging(manifold, developer, version string) string {
	return strings.Join([]string{
		"PROJECT=CDCS",
		"STAGE=" + url.QueryEscape(manifold),
		"DEVELOPER=" + url.QueryEscape(developer),
		"VERSION=" + url.QueryEscape(version),
	}, "&")
}
