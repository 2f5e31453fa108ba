package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInstructionPrefersExplicit(t *testing.T) {
	sp := New(true)
	sp.readClipboard = func() (string, error) {
		t.Fatal("clipboard should not be read")
		return "", nil
	}
	got, err := sp.Instruction("  fix typos  ")
	if err != nil {
		t.Fatalf("Instruction: %v", err)
	}
	if got != "fix typos" {
		t.Errorf("Instruction() = %q", got)
	}
}

func TestInstructionFromClipboard(t *testing.T) {
	sp := New(true)
	sp.readClipboard = func() (string, error) { return "\nfrom clipboard\n", nil }

	got, err := sp.Instruction("")
	if err != nil {
		t.Fatalf("Instruction: %v", err)
	}
	if got != "from clipboard" {
		t.Errorf("Instruction() = %q", got)
	}

	sp.readClipboard = func() (string, error) { return "", errors.New("no clipboard") }
	if _, err := sp.Instruction(""); err == nil {
		t.Error("expected clipboard error")
	}
}

func TestInstructionFromPipedStdin(t *testing.T) {
	// A regular file is not a character device, the same as a pipe.
	path := filepath.Join(t.TempDir(), "stdin")
	if err := os.WriteFile(path, []byte("rewrite the intro\n"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sp := New(false)
	sp.stdin = f
	got, err := sp.Instruction("")
	if err != nil {
		t.Fatalf("Instruction: %v", err)
	}
	if got != "rewrite the intro" {
		t.Errorf("Instruction() = %q", got)
	}
}

func TestInstructionNothingAvailable(t *testing.T) {
	sp := New(false)
	sp.stdin = nil
	got, err := sp.Instruction(" ")
	if err != nil || got != "" {
		t.Errorf("Instruction() = %q, %v; want empty", got, err)
	}
}
