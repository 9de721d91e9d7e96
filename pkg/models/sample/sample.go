package sample

import (
	"path/filepath"
	"sort"
)

// NoConsensus is the line value the metadata store reports when annotators could not agree on a line.
const NoConsensus = "No Consensus"

// VariantKind names an ancillary file class stored next to a primary CDM.
type VariantKind string

const (
	Gradient          VariantKind = "gradient"
	ZGap              VariantKind = "zgap"
	SearchableNeurons VariantKind = "searchable_neurons"
)

// Record is one color depth MIP entry from a source manifest or the JACS colorDepthMIPs endpoint.
type Record struct {
	Id                 string            `json:"_id"`
	SampleRef          string            `json:"sampleRef,omitempty"`
	ImageName          string            `json:"imageName"`
	ImageArchivePath   string            `json:"imageArchivePath,omitempty"`
	Filepath           string            `json:"filepath,omitempty"`
	Name               string            `json:"name,omitempty"`
	AlignmentSpace     string            `json:"alignmentSpace"`
	PublishedName      string            `json:"publishedName,omitempty"`
	SlideCode          string            `json:"slideCode,omitempty"`
	Gender             string            `json:"gender,omitempty"`
	Objective          string            `json:"objective,omitempty"`
	AnatomicalArea     string            `json:"anatomicalArea,omitempty"`
	Channel            int               `json:"channelNumber,omitempty"`
	Variants           map[string]string `json:"variants,omitempty"`
	PublicImageURL     string            `json:"publicImageUrl,omitempty"`
	PublicThumbnailURL string            `json:"publicThumbnailUrl,omitempty"`
}

// Normalize fills Name and Filepath from ImageName / ImageArchivePath.
// Archived images keep their archive location as the source path.
func (r *Record) Normalize() {
	if r.ImageArchivePath != "" {
		r.Name = r.ImageName
		r.Filepath = filepath.Join(r.ImageArchivePath, r.Name)
		return
	}
	if r.Filepath == "" {
		r.Filepath = r.ImageName
	}
	r.Name = filepath.Base(r.ImageName)
}

// Published reports whether the record already carries a public image URL.
func (r *Record) Published() bool {
	return r.PublicImageURL != ""
}

// VariantKinds returns the record's variant kinds in a stable order.
func (r *Record) VariantKinds() []VariantKind {
	kinds := make([]VariantKind, 0, len(r.Variants))
	for k := range r.Variants {
		kinds = append(kinds, VariantKind(k))
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Info is the metadata-store view of a sample referenced by Record.SampleRef.
type Info struct {
	Id             string `json:"_id"`
	Name           string `json:"name"`
	Line           string `json:"line"`
	SlideCode      string `json:"slideCode"`
	Gender         string `json:"gender"`
	PublishingName string `json:"publishingName"`
	DataSet        string `json:"dataSet"`
}

// Reference returns the sample id part of a "Sample#<id>" reference.
func Reference(sampleRef string) string {
	for i := len(sampleRef) - 1; i >= 0; i-- {
		if sampleRef[i] == '#' {
			return sampleRef[i+1:]
		}
	}
	return sampleRef
}
