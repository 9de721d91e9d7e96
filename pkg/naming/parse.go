package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

var sequencePattern = regexp.MustCompile(`-CH\d+-(\d+)`)

// ParseChannel extracts the channel number from a CDM filename such as
// "LineA-CH2_01.png". A trailing "-gamma..." segment is skipped so that
// "Line-CH1-gamma1_4.png" still resolves to channel 1.
func ParseChannel(filename string) (string, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	segments := strings.Split(stem, "-")
	segment := segments[len(segments)-1]
	if strings.HasPrefix(strings.ToLower(segment), "gamma") && len(segments) > 1 {
		segment = segments[len(segments)-2]
	}
	token := strings.SplitN(segment, "_", 2)[0]
	if !strings.HasPrefix(token, "CH") {
		return "", &ChannelParseError{Filename: base, Token: token}
	}
	switch channel := strings.TrimPrefix(token, "CH"); channel {
	case "1", "2", "3", "4":
		return channel, nil
	default:
		return "", &ChannelParseError{Filename: base, Token: token}
	}
}

// ParseSequence extracts the sequence number from a "-CH<n>-<seq>" filename.
func ParseSequence(filename string) (string, error) {
	base := filepath.Base(filename)
	match := sequencePattern.FindStringSubmatch(base)
	if match == nil {
		return "", &UnparsableVariantError{Filename: base, Reason: "no sequence number"}
	}
	return match[1], nil
}

// extension returns the extension of path without the leading dot.
func extension(path string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(path)), ".")
	if ext == "" {
		return "", &UnparsableVariantError{Filename: filepath.Base(path), Reason: "no extension"}
	}
	return ext, nil
}
