package domain

import (
	"path/filepath"
	"strings"
)

// ROMIDFor derives the stable ROM identifier from a platform and the file's
// base name. The id is independent of the display filename's extension and
// casing so a rename of the exposed file never orphans the blob.
func ROMIDFor(platform, filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	id := platform + "_" + stem
	id = strings.ReplaceAll(id, " ", "_")
	return strings.ToLower(id)
}

// PlatformOf extracts the platform from an exposed path of the form
// <romsDir>/<platform>/<filename>.
func PlatformOf(exposedPath string) string {
	return filepath.Base(filepath.Dir(exposedPath))
}
