package bundle

import (
	"strings"
	"testing"

	"github.com/sokinpui/aiwriter/model"
)

func TestFiles(t *testing.T) {
	files := []model.CandidateFile{
		{Path: "docs/b.md", Content: "second"},
		{Path: "docs/a.md", Content: "first\n"},
	}

	got := Files(files)
	want := "=== FILE: docs/b.md ===\nsecond\n\n=== FILE: docs/a.md ===\nfirst\n"
	if got != want {
		t.Errorf("Files() mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}

	if again := Files(files); again != got {
		t.Error("Files() is not deterministic")
	}
}

func TestFilesEmpty(t *testing.T) {
	if got := Files(nil); got != "" {
		t.Errorf("Files(nil) = %q, want empty", got)
	}
}

func TestPayload(t *testing.T) {
	got := Payload("  fix the typo \n", Files([]model.CandidateFile{{Path: "a.md", Content: "teh"}}))

	if !strings.HasPrefix(got, "User request:\nfix the typo\n\nProject files:\n") {
		t.Errorf("instruction must precede the files, got %q", got)
	}
	if !strings.HasSuffix(got, "=== FILE: a.md ===\nteh") {
		t.Errorf("files missing from payload: %q", got)
	}
}
