package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// SourceProvider determines and retrieves the edit instruction when it was
// not passed as a flag or environment variable.
type SourceProvider struct {
	useClipboard  bool
	stdin         *os.File
	readClipboard func() (string, error)
}

// New creates a new SourceProvider.
func New(useClipboard bool) *SourceProvider {
	return &SourceProvider{
		useClipboard:  useClipboard,
		stdin:         os.Stdin,
		readClipboard: clipboard.ReadAll,
	}
}

// Instruction returns explicit when it is non-blank. Otherwise it reads the
// clipboard (when enabled) or piped stdin. An empty result means no
// instruction was found.
func (sp *SourceProvider) Instruction(explicit string) (string, error) {
	if s := strings.TrimSpace(explicit); s != "" {
		return s, nil
	}

	if sp.useClipboard {
		content, err := sp.readClipboard()
		if err != nil {
			return "", fmt.Errorf("failed to read from clipboard: %w", err)
		}
		return strings.TrimSpace(content), nil
	}

	if sp.stdin == nil || !isPiped(sp.stdin) {
		return "", nil
	}
	content, err := io.ReadAll(sp.stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return strings.TrimSpace(string(content)), nil
}

func isPiped(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}
