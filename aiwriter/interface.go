package aiwriter

import (
	"fmt"
	"log/slog"

	"github.com/sokinpui/aiwriter/cli"
	"github.com/sokinpui/aiwriter/model"
)

// Config for using aiwriter as a library.
type Config struct {
	// Root is the repository root. Defaults to the current directory.
	Root string
	// Globs limit which files may be written.
	Globs []string
	// PolicyPath overrides the policy overlay location.
	PolicyPath string
	Logger     *slog.Logger
}

// Apply decodes an already obtained model response and applies it under the
// resolved policy. The text-generation service is not contacted.
func Apply(raw string, config Config) (model.Summary, error) {
	root := config.Root
	if root == "" {
		root = "."
	}
	cliCfg := &cli.Config{
		Prompt:     "apply response",
		Paths:      config.Globs,
		PathsSet:   true,
		Root:       root,
		PolicyPath: config.PolicyPath,
	}

	var opts []Option
	if config.Logger != nil {
		opts = append(opts, WithLogger(config.Logger))
	}
	app, err := New(cliCfg, opts...)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize aiwriter app: %w", err)
	}
	return app.decodeAndApply(raw)
}
