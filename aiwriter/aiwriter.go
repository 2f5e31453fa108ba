package aiwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/sokinpui/aiwriter/cli"
	"github.com/sokinpui/aiwriter/internal/bundle"
	"github.com/sokinpui/aiwriter/internal/fs"
	"github.com/sokinpui/aiwriter/internal/llm"
	"github.com/sokinpui/aiwriter/internal/parser"
	"github.com/sokinpui/aiwriter/internal/patcher"
	"github.com/sokinpui/aiwriter/internal/policy"
	"github.com/sokinpui/aiwriter/model"
)

// Pipeline stages reported through the progress callback.
const (
	StageCollect = "Collecting files"
	StagePropose = "Waiting for the model"
	StageApply   = "Applying changes"
)

// Messages for runs that end without touching the filesystem.
const (
	MsgNothingToEdit = "No files matched the allowed globs; nothing to edit."
	MsgNoChanges     = "The model proposed no changes."
)

// ProgressUpdate is a callback function to report the current stage.
type ProgressUpdate func(stage string)

// App orchestrates one run of the pipeline.
type App struct {
	cfg              *cli.Config
	policy           model.Policy
	proposer         llm.Proposer
	lookupEnv        func(string) (string, bool)
	logger           *slog.Logger
	progressCallback ProgressUpdate
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// Option customizes an App.
type Option func(*App)

// WithProposer replaces the HTTP client, mainly for tests.
func WithProposer(p llm.Proposer) Option {
	return func(a *App) { a.proposer = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLookupEnv replaces os.LookupEnv for credential resolution.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(a *App) { a.lookupEnv = fn }
}

// New validates cfg and resolves the policy. The policy is fixed for the
// lifetime of the App.
func New(cfg *cli.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := policy.Resolve(cfg.Root, cfg.PolicyPath, cfg.Paths)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		policy:    p,
		lookupEnv: os.LookupEnv,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Policy returns the resolved policy.
func (a *App) Policy() model.Policy {
	return a.policy
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

func (a *App) progress(stage string) {
	if a.progressCallback != nil {
		a.progressCallback(stage)
	}
}

// Execute runs collection, proposal, decoding and application once.
// Outcomes that leave the repository untouched on purpose (no candidates, no
// proposed changes, undecodable output) are reported in the summary with a
// nil error.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	a.progress(StageCollect)
	coll, err := fs.Collect(a.cfg.Root, a.policy)
	if err != nil {
		return model.Summary{}, err
	}
	a.logger.Info("collected files", "count", len(coll.Files), "bytes", coll.TotalBytes, "limit", a.policy.MaxBytes)
	if len(coll.Files) == 0 {
		return model.Summary{Message: MsgNothingToEdit}, nil
	}

	proposer, err := a.resolveProposer()
	if err != nil {
		return model.Summary{}, err
	}

	a.progress(StagePropose)
	raw, err := proposer.Propose(ctx, a.cfg.Prompt, bundle.Files(coll.Files))
	if err != nil {
		return model.Summary{}, err
	}

	a.progress(StageApply)
	return a.decodeAndApply(raw)
}

func (a *App) resolveProposer() (llm.Proposer, error) {
	if a.proposer != nil {
		return a.proposer, nil
	}
	key, err := llm.ResolveAPIKey(func(k string) string {
		v, _ := a.lookupEnv(k)
		return v
	})
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(llm.Options{
		BaseURL:         a.cfg.BaseURL,
		Model:           a.cfg.Model,
		APIKey:          key,
		ReasoningEffort: a.cfg.ReasoningEffort,
	})
	a.logger.Info("requesting edits", "model", client.Model())
	a.proposer = client
	return a.proposer, nil
}

// decodeAndApply turns raw model output into file writes.
func (a *App) decodeAndApply(raw string) (model.Summary, error) {
	res, err := parser.Decode(raw)
	if err != nil {
		var de *parser.DecodeError
		if errors.As(err, &de) {
			a.logger.Warn("model output not decodable", "reason", de.Reason)
			return model.Summary{DecodeFailed: true, Raw: de.Raw, Message: de.Error()}, nil
		}
		return model.Summary{}, err
	}
	a.logger.Info("decoded changes", "strategy", res.Strategy, "changes", len(res.Changes), "malformed", res.Malformed)

	summary, err := patcher.New(a.cfg.Root, a.policy, a.logger).Apply(res.Changes)
	summary.Malformed = res.Malformed
	if err == nil && len(res.Changes) == 0 {
		summary.Message = MsgNoChanges
	}
	return summary, err
}
