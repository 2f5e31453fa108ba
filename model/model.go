package model

// Policy is the resolved authorization boundary for a run.
type Policy struct {
	// MaxBytes is the upper bound on the aggregate size of candidate files.
	MaxBytes int64
	// AllowGlobs are slash-separated patterns relative to the repository root.
	AllowGlobs []string
	// AllowCreates permits writing files that do not exist yet.
	AllowCreates bool
}

// CandidateFile is a file eligible to be sent to the model and edited.
type CandidateFile struct {
	Path    string // slash-separated, relative to the root
	Content string
	Size    int64
}

// ChangeRequest is a single whole-file replacement proposed by the model.
type ChangeRequest struct {
	Path    string
	Content string
}

// Rejection records a proposed change that was not applied and why.
type Rejection struct {
	Path   string
	Reason string
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Rejected []Rejection
	// Malformed counts change entries dropped before validation.
	Malformed int
	Message   string

	// DecodeFailed is set when the model output could not be reduced to a
	// change list. Raw holds that output for diagnosis.
	DecodeFailed bool
	Raw          string
}

// Applied returns the number of files written.
func (s Summary) Applied() int {
	return len(s.Created) + len(s.Modified)
}
