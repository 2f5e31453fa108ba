// Package policy resolves the authorization boundary for a run.
// The effective policy is built from (lowest to highest priority):
// 1. Defaults
// 2. Input globs supplied by the caller
// 3. The optional overlay file (.ai-policy.yml in the repository root)
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/aiwriter/model"
)

const (
	// DefaultMaxBytes is the aggregate candidate size limit.
	DefaultMaxBytes int64 = 400_000
	// DefaultPath is the overlay location relative to the repository root.
	DefaultPath = ".ai-policy.yml"
	// ReservedPrefix marks files the tool must never read or edit.
	ReservedPrefix = ".ai-"
)

// overlay mirrors the policy file. Pointer fields distinguish "absent" from
// the zero value.
type overlay struct {
	MaxBytes     *int64    `yaml:"max_bytes"`
	AllowGlobs   *[]string `yaml:"allow_globs"`
	AllowCreates *bool     `yaml:"allow_creates"`
}

// Default returns the policy used when no overlay is present.
func Default(globs []string) model.Policy {
	return model.Policy{
		MaxBytes:     DefaultMaxBytes,
		AllowGlobs:   globs,
		AllowCreates: true,
	}
}

// Resolve merges the overlay at overlayPath (relative paths are taken from
// root) over the defaults. A missing overlay is not an error; a broken one is.
func Resolve(root, overlayPath string, inputGlobs []string) (model.Policy, error) {
	globs, err := NormalizeGlobs(inputGlobs)
	if err != nil {
		return model.Policy{}, err
	}
	p := Default(globs)

	if overlayPath == "" {
		overlayPath = DefaultPath
	}
	if !filepath.IsAbs(overlayPath) {
		overlayPath = filepath.Join(root, overlayPath)
	}

	ov, err := loadFromPath(overlayPath)
	if err != nil {
		return model.Policy{}, err
	}
	if ov == nil {
		return p, nil
	}
	return merge(p, ov)
}

// loadFromPath returns nil when the file does not exist or holds no document.
func loadFromPath(path string) (*overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read policy %s: %v", model.ErrConfiguration, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var ov overlay
	if err := dec.Decode(&ov); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: parse policy %s: %v", model.ErrConfiguration, path, err)
	}
	return &ov, nil
}

func merge(dst model.Policy, src *overlay) (model.Policy, error) {
	if src.MaxBytes != nil {
		if *src.MaxBytes <= 0 {
			return model.Policy{}, fmt.Errorf("%w: max_bytes must be positive, got %d", model.ErrConfiguration, *src.MaxBytes)
		}
		dst.MaxBytes = *src.MaxBytes
	}
	if src.AllowGlobs != nil {
		globs, err := NormalizeGlobs(*src.AllowGlobs)
		if err != nil {
			return model.Policy{}, err
		}
		dst.AllowGlobs = globs
	}
	if src.AllowCreates != nil {
		dst.AllowCreates = *src.AllowCreates
	}
	return dst, nil
}

// SplitGlobs splits a comma-separated glob list, dropping blank entries.
func SplitGlobs(raw string) []string {
	var out []string
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// NormalizeGlobs trims patterns, drops blanks and rejects anything that could
// reach outside the repository root.
func NormalizeGlobs(globs []string) ([]string, error) {
	out := make([]string, 0, len(globs))
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		g = filepath.ToSlash(g)
		for strings.HasPrefix(g, "./") {
			g = g[2:]
		}
		if g == "" {
			continue
		}
		if path.IsAbs(g) || filepath.IsAbs(g) {
			return nil, fmt.Errorf("%w: glob %q must be relative to the repository root", model.ErrConfiguration, g)
		}
		for _, seg := range strings.Split(g, "/") {
			if seg == ".." {
				return nil, fmt.Errorf("%w: glob %q must not leave the repository root", model.ErrConfiguration, g)
			}
		}
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("%w: invalid glob %q", model.ErrConfiguration, g)
		}
		out = append(out, g)
	}
	return out, nil
}
