package domain

import (
	"path/filepath"
	"strings"
)

const (
	DefaultSoundDown = "default_down"
	DefaultSoundUp   = "default_up"
)

// NormalizeSound strips the file extension (Android res/raw names have none)
// and falls back when the result is empty.
func NormalizeSound(name *string, fallback string) string {
	if name == nil || *name == "" {
		return fallback
	}
	base := strings.TrimSuffix(*name, filepath.Ext(*name))
	if base == "" {
		return fallback
	}
	return base
}
