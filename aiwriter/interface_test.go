package aiwriter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sokinpui/aiwriter/aiwriter"
)

func TestLibraryApply(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "readme.md"), []byte("Hello"), 0644); err != nil {
		t.Fatal(err)
	}

	raw := "```json\n{\"changes\":[{\"path\":\"docs/readme.md\",\"content\":\"Hello world\"},{\"path\":\"docs/new.md\",\"content\":\"new\"}]}\n```"
	summary, err := aiwriter.Apply(raw, aiwriter.Config{Root: root, Globs: []string{"docs/*.md"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(summary.Modified) != 1 || len(summary.Created) != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	data, err := os.ReadFile(filepath.Join(root, "docs", "new.md"))
	if err != nil || string(data) != "new" {
		t.Errorf("docs/new.md = %q, %v", data, err)
	}
}

func TestLibraryApplyDecodeFailure(t *testing.T) {
	summary, err := aiwriter.Apply("no json here", aiwriter.Config{Root: t.TempDir(), Globs: []string{"*"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !summary.DecodeFailed {
		t.Errorf("summary = %+v, want DecodeFailed", summary)
	}
}
