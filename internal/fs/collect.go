package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sokinpui/aiwriter/model"
)

// Collection is the ordered set of candidate files for a run.
type Collection struct {
	Files      []model.CandidateFile
	TotalBytes int64
}

// CheckBudget fails when the collection is larger than maxBytes.
func (c Collection) CheckBudget(maxBytes int64) error {
	if c.TotalBytes > maxBytes {
		return fmt.Errorf("%w: refusing: %d bytes exceeds limit %d", model.ErrBudgetExceeded, c.TotalBytes, maxBytes)
	}
	return nil
}

// Paths lists the collected paths in order.
func (c Collection) Paths() []string {
	paths := make([]string, len(c.Files))
	for i, f := range c.Files {
		paths[i] = f.Path
	}
	return paths
}

// Collect expands the policy globs under root. Sizes are measured and the
// budget enforced before any file content is read.
func Collect(root string, p model.Policy) (Collection, error) {
	allow := NewAllowlist(p.AllowGlobs)
	fsys := os.DirFS(root)

	var coll Collection
	seen := make(map[string]struct{})
	for _, g := range allow.Globs() {
		matches, err := doublestar.Glob(fsys, g)
		if err != nil {
			return Collection{}, fmt.Errorf("%w: expand glob %q: %v", model.ErrConfiguration, g, err)
		}

		for _, rel := range matches {
			abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return Collection{}, fmt.Errorf("resolve %s: %w", rel, err)
			}
			info, err := os.Stat(abs)
			if err != nil || info.IsDir() || !info.Mode().IsRegular() {
				continue
			}
			if ok, _ := allow.QualifiesResolved(root, rel); !ok {
				continue
			}
			key := abs
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				key = resolved
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			coll.Files = append(coll.Files, model.CandidateFile{Path: rel, Size: info.Size()})
			coll.TotalBytes += info.Size()
		}
	}

	if err := coll.CheckBudget(p.MaxBytes); err != nil {
		return coll, err
	}

	for i := range coll.Files {
		content, err := readText(fsys, coll.Files[i].Path)
		if err != nil {
			return Collection{}, err
		}
		coll.Files[i].Content = content
	}
	return coll, nil
}

// readText reads a file as UTF-8, dropping invalid byte sequences.
func readText(fsys iofs.FS, rel string) (string, error) {
	data, err := iofs.ReadFile(fsys, rel)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
