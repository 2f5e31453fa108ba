package model

import "errors"

var (
	// ErrConfiguration covers malformed policy overlays and missing inputs.
	ErrConfiguration = errors.New("configuration error")
	// ErrCredential means no API key could be found.
	ErrCredential = errors.New("credential error")
	// ErrBudgetExceeded means the candidate files are larger than the policy allows.
	ErrBudgetExceeded = errors.New("byte budget exceeded")
	// ErrService wraps failures talking to the text-generation service.
	ErrService = errors.New("service error")
	// ErrDecode means the model output did not contain a usable change list.
	// It is the only error in this list that does not fail the run.
	ErrDecode = errors.New("decode failure")
)
