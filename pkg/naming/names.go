package naming

import (
	"fmt"
	"path"
	"strings"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/models/sample"
)

// LightFields holds everything a light microscopy primary name is built from.
type LightFields struct {
	PublishingName string
	SlideCode      string
	Driver         string
	Gender         string
	Objective      string
	Area           string
	AlignmentSpace string
	Channel        string
}

// LightName formats a light microscopy primary CDM name.
func LightName(f LightFields) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s-%s-%s-CDM_%s.png",
		f.PublishingName, f.SlideCode, f.Driver, f.Gender, f.Objective,
		strings.ToLower(f.Area), f.AlignmentSpace, f.Channel)
}

// BodyID returns the body id from an EM image name such as "1537331894_RT_18U_FL"
// and whether the image is the flipped copy.
func BodyID(name string) (string, bool) {
	return strings.SplitN(name, "_", 2)[0], strings.Contains(name, "_FL")
}

// EMName formats an EM primary name. The TIFF form is used for the unconverted
// searchable file, with "-FL" before the extension for flipped images.
func EMName(bodyID, alignmentSpace string, tiff, flipped bool) string {
	name := fmt.Sprintf("%s-%s-CDM", bodyID, alignmentSpace)
	if !tiff {
		return name + ".png"
	}
	if flipped {
		name += "-FL"
	}
	return name + ".tif"
}

// VariantName derives a variant's file name from the primary's name. Kinds with
// several files per sample carry the sequence number parsed from the source file.
func VariantName(primary string, sourcePath string, multi bool) (string, error) {
	ext, err := extension(sourcePath)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(primary, path.Ext(primary))
	if !multi {
		return fmt.Sprintf("%s.%s", stem, ext), nil
	}
	seq, err := ParseSequence(sourcePath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s.%s", stem, seq, ext), nil
}

// VariantKey places a variant file under its kind and, when subdivision is
// positive, a numbered sub-prefix.
func VariantKey(kind sample.VariantKind, subdivision int, name string) string {
	if subdivision > 0 {
		return fmt.Sprintf("%s/%d/%s", kind, subdivision, name)
	}
	return fmt.Sprintf("%s/%s", kind, name)
}

// ObjectKey is the full canonical key below the bucket root.
func ObjectKey(alignmentSpace string, lib Library, name string) string {
	return strings.Join([]string{alignmentSpace, lib.Dir(), name}, "/")
}

// PublicURL returns the URL an object is served from. Spaces are encoded as '+'.
func PublicURL(baseURL, bucket, key string) string {
	url := strings.Join([]string{strings.TrimSuffix(baseURL, "/"), bucket, key}, "/")
	return strings.ReplaceAll(url, " ", "+")
}

// ThumbnailURL maps a CDM image URL onto the thumbnail bucket's JPEG.
func ThumbnailURL(url, cdmBucket, thumbnailBucket string) string {
	turl := strings.ReplaceAll(url, ".png", ".jpg")
	return strings.Replace(turl, cdmBucket, thumbnailBucket, 1)
}

// ContentType picks the MIME type for an uploaded object name.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".json":
		return "application/json"
	default:
		return "image/jpeg"
	}
}
