package domain

import "strings"

// ROMServer describes one remote ROM source. Servers are tried in the
// order they are configured.
type ROMServer struct {
	Name          string
	BaseURL       string
	AuthHeaders   map[string]string
	PlatformPaths map[string]string
}

// HasPlatform reports whether this server carries the given platform.
func (s *ROMServer) HasPlatform(platform string) bool {
	_, ok := s.PlatformPaths[platform]
	return ok
}

// URLFor builds the download URL for a filename on the given platform.
// Returns "" if the server does not carry the platform.
func (s *ROMServer) URLFor(platform, filename string) string {
	segment, ok := s.PlatformPaths[platform]
	if !ok {
		return ""
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + segment + "/" + filename
}

// DefaultPlatformPaths returns the platform -> path mapping used when a
// server is configured without one.
func DefaultPlatformPaths() map[string]string {
	return map[string]string{
		"nes":      "nes",
		"snes":     "snes",
		"gb":       "gb",
		"gbc":      "gbc",
		"gba":      "gba",
		"genesis":  "genesis",
		"n64":      "n64",
		"psx":      "psx",
		"ps2":      "ps2",
		"gamecube": "gamecube",
		"wii":      "wii",
		"ps3":      "ps3",
		"xbox360":  "xbox360",
	}
}
