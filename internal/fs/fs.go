package fs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sokinpui/aiwriter/internal/policy"
)

// deniedExtensions are never sent to the model nor written back.
var deniedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {},
}

// Allowlist decides whether a repository-relative path is inside the policy
// boundary. The collector and the patcher share it so a change can only
// target a path that could have been collected.
type Allowlist struct {
	globs []string
}

// NewAllowlist creates an Allowlist from normalized glob patterns.
func NewAllowlist(globs []string) Allowlist {
	return Allowlist{globs: globs}
}

// Globs returns the patterns in evaluation order.
func (a Allowlist) Globs() []string {
	return a.globs
}

// Qualifies reports whether rel may be read or written. When it may not, the
// returned reason says why.
func (a Allowlist) Qualifies(rel string) (bool, string) {
	clean, err := CleanRel(rel)
	if err != nil {
		return false, err.Error()
	}
	if reason := excluded(clean); reason != "" {
		return false, reason
	}
	for _, g := range a.globs {
		if ok, err := doublestar.Match(g, clean); err == nil && ok {
			return true, ""
		}
	}
	return false, "not matched by any allowed glob"
}

// excluded applies the fixed filters that hold regardless of globs.
func excluded(rel string) string {
	name := path.Base(rel)
	if strings.HasPrefix(name, policy.ReservedPrefix) {
		return "reserved file name"
	}
	if _, ok := deniedExtensions[strings.ToLower(path.Ext(name))]; ok {
		return "binary file type"
	}
	return ""
}

// CleanRel converts p to a clean slash-separated path relative to the root,
// refusing anything that points outside it.
func CleanRel(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) || path.IsAbs(filepath.ToSlash(p)) {
		return "", fmt.Errorf("absolute path")
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path escapes the repository root")
	}
	return clean, nil
}

// Resolve follows symlinks in target and returns its real location as a
// slash path relative to the real root. inside is false when that location
// is outside root. A target that does not exist yet is judged by its nearest
// existing parent.
func Resolve(root, target string) (rel string, inside bool, err error) {
	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", false, err
	}
	rootReal, err = filepath.Abs(rootReal)
	if err != nil {
		return "", false, err
	}

	probe := target
	suffix := ""
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			resolved, err = filepath.Abs(filepath.Join(resolved, suffix))
			if err != nil {
				return "", false, err
			}
			r, err := filepath.Rel(rootReal, resolved)
			if err != nil {
				return "", false, nil
			}
			if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				return "", false, nil
			}
			return filepath.ToSlash(r), true, nil
		}
		if !os.IsNotExist(err) {
			return "", false, err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return "", false, nil
		}
		suffix = filepath.Join(filepath.Base(probe), suffix)
		probe = parent
	}
}

// QualifiesResolved applies Qualifies to both the path as named and the real
// file it points to, so a symlink cannot reach a file the globs exclude.
func (a Allowlist) QualifiesResolved(root, rel string) (bool, string) {
	if ok, reason := a.Qualifies(rel); !ok {
		return false, reason
	}
	clean, _ := CleanRel(rel)
	resolved, inside, err := Resolve(root, filepath.Join(root, filepath.FromSlash(clean)))
	if err != nil || !inside {
		return false, "path resolves outside the repository root"
	}
	if resolved == clean {
		return true, ""
	}
	if ok, reason := a.Qualifies(resolved); !ok {
		return false, "symlink target " + resolved + ": " + reason
	}
	return true, ""
}

// FileAction reports whether writing to target creates or modifies a file.
func FileAction(target string) (string, error) {
	if _, err := os.Lstat(target); err != nil {
		if os.IsNotExist(err) {
			return "create", nil
		}
		return "", err
	}
	return "modify", nil
}

// CreateDirs creates the parent directory of target. Calling it for a
// directory that already exists is a no-op.
func CreateDirs(target string) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
