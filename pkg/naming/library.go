package naming

import (
	"fmt"
	"strings"
)

var gen1Collection = map[string]bool{
	"flylight_gen1_gal4":                 true,
	"flylight_gen1_lexa":                 true,
	"flylight_vt_gal4_screen":            true,
	"flylight_vt_lexa_screen":            true,
	"flylight_gen1_mcfo_published":       true,
	"flylight_gen1_mcfo_case_1_gamma1_4": true,
}

var versionRequired = map[string]bool{
	"flyem_hemibrain": true,
}

var publishFlagRequired = map[string]bool{
	"flylight_splitgal4_drivers": true,
}

// Library describes the CDM library an upload run publishes into.
type Library struct {
	// Key is the library identifier used by JACS and the config service.
	Key string
	// Name is the display name, which becomes the object path segment.
	Name string
	// Version is appended to the path for libraries that are versioned.
	Version string
	// AllowedDrivers optionally restricts the drivers a light sample may resolve to.
	AllowedDrivers []string
}

// NewLibrary resolves key against the library registry returned by the config service.
func NewLibrary(key string, registry map[string]string, version string) (Library, error) {
	name, ok := registry[key]
	if !ok {
		return Library{}, Fatal(fmt.Errorf("unknown library %s", key))
	}
	lib := Library{Key: key, Name: name, Version: version}
	if lib.VersionRequired() && version == "" {
		return Library{}, Fatal(fmt.Errorf("library %s requires a version", key))
	}
	return lib, nil
}

func (l Library) Gen1() bool {
	return gen1Collection[l.Key]
}

func (l Library) EM() bool {
	return strings.HasPrefix(l.Key, "flyem_")
}

func (l Library) VersionRequired() bool {
	return versionRequired[l.Key]
}

// RequiresPublishFlag reports whether samples must be explicitly flagged for publishing in SAGE.
func (l Library) RequiresPublishFlag() bool {
	return publishFlagRequired[l.Key]
}

// Dir returns the library path segment: the display name with spaces replaced,
// plus "_v<version>" for versioned libraries.
func (l Library) Dir() string {
	dir := strings.ReplaceAll(l.Name, " ", "_")
	if l.VersionRequired() {
		dir += "_v" + l.Version
	}
	return dir
}

func (l Library) allows(driver string) bool {
	if len(l.AllowedDrivers) == 0 {
		return true
	}
	for _, d := range l.AllowedDrivers {
		if d == driver {
			return true
		}
	}
	return false
}
