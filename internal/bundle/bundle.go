// Package bundle serializes candidate files into the request sent to the model.
package bundle

import (
	"fmt"
	"strings"

	"github.com/sokinpui/aiwriter/model"
)

// SystemPrompt instructs the model to answer with whole-file replacements only.
const SystemPrompt = `You are a precise repo editor. Apply the user's request to the provided files.
- Make minimal, high-quality edits.
- Preserve formatting and front-matter.
- Do not invent facts or break links.
- Return ONLY a JSON object with property 'changes' which is an array of objects {path, content}.
- Each content is the complete new text of the file; paths are exactly as given in the FILE markers.
- Example: {"changes":[{"path":"README.md","content":"..."}]}
- If no changes needed, return {"changes": []}.
`

// Marker returns the delimiter line that introduces a file in the bundle.
func Marker(path string) string {
	return fmt.Sprintf("=== FILE: %s ===", path)
}

// Files concatenates the files in the given order, each preceded by its marker.
func Files(files []model.CandidateFile) string {
	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(Marker(f.Path))
		b.WriteString("\n")
		b.WriteString(f.Content)
	}
	return b.String()
}

// Payload places the user's instruction ahead of the file bundle.
func Payload(instruction, files string) string {
	return fmt.Sprintf("User request:\n%s\n\nProject files:\n%s", strings.TrimSpace(instruction), files)
}
