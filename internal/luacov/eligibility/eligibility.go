// Package eligibility decides whether a source path should be tracked,
// applying the include/exclude/source_dirs/track_all_executed
// configuration options.
package eligibility

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy holds the glob-based eligibility rules for one engine run.
type Policy struct {
	Include          []string
	Exclude          []string
	SourceDirs       []string
	TrackAllExecuted bool
	SourceSuffix     string // e.g. ".lua"
}

// Eligible reports whether path should be tracked under this policy.
// Exclude takes precedence over include.
func (p Policy) Eligible(path string) bool {
	norm := filepathToSlash(path)

	if p.matchesAny(p.Exclude, norm) {
		return false
	}
	if p.matchesAny(p.Include, norm) {
		return true
	}
	if p.TrackAllExecuted && p.SourceSuffix != "" && strings.HasSuffix(norm, p.SourceSuffix) {
		return true
	}
	return false
}

// UnderSourceDirs reports whether path falls under any configured
// source_dirs root; an empty SourceDirs list means "no restriction".
func (p Policy) UnderSourceDirs(path string) bool {
	if len(p.SourceDirs) == 0 {
		return true
	}
	norm := filepathToSlash(path)
	for _, dir := range p.SourceDirs {
		d := filepathToSlash(dir)
		if norm == d || strings.HasPrefix(norm, d+"/") {
			return true
		}
	}
	return false
}

func (p Policy) matchesAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		ok, err := doublestar.Match(pat, path)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
