package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sokinpui/aiwriter/internal/llm"
	"github.com/sokinpui/aiwriter/internal/policy"
	"github.com/sokinpui/aiwriter/model"
)

// Environment variables read when the matching flag is not given.
const (
	EnvPrompt          = "INPUT_PROMPT"
	EnvPaths           = "INPUT_PATHS"
	EnvModel           = "OPENAI_MODEL"
	EnvReasoningEffort = "OPENAI_REASONING_EFFORT"
	EnvBaseURL         = "OPENAI_BASE_URL"
)

// Config holds all the command-line flag values.
type Config struct {
	Prompt          string
	Paths           []string
	PathsSet        bool
	Model           string
	ReasoningEffort string
	BaseURL         string
	PolicyPath      string
	Root            string
	Clipboard       bool
	NoAnimation     bool
	Verbose         bool
}

// ParseFlags defines and parses command-line flags using pflag, falling back
// to the environment for anything not given on the command line.
func ParseFlags(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	getenv := func(key string) string {
		v, _ := lookupEnv(key)
		return v
	}
	cfg := &Config{}
	flags := pflag.NewFlagSet("aiwriter", pflag.ContinueOnError)

	var paths string
	flags.StringVarP(&cfg.Prompt, "prompt", "p", "", "Edit instruction (env "+EnvPrompt+"). Read from stdin when piped.")
	flags.StringVarP(&paths, "paths", "g", "", "Comma-separated globs of files that may be edited (env "+EnvPaths+").")
	flags.StringVarP(&cfg.Model, "model", "m", "", "Model identifier (env "+EnvModel+", default "+llm.DefaultModel+").")
	flags.StringVar(&cfg.ReasoningEffort, "reasoning-effort", "", "Reasoning effort, empty string to omit (env "+EnvReasoningEffort+", default "+llm.DefaultReasoningEffort+").")
	flags.StringVar(&cfg.BaseURL, "base-url", "", "API base URL (env "+EnvBaseURL+").")
	flags.StringVar(&cfg.PolicyPath, "policy", policy.DefaultPath, "Policy overlay file, relative to the root.")
	flags.StringVarP(&cfg.Root, "root", "C", ".", "Repository root.")
	flags.BoolVar(&cfg.Clipboard, "clipboard", false, "Read the instruction from the clipboard when none is given.")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable the loading spinner.")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging.")

	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: aiwriter [flags]")
		fmt.Fprintln(os.Stderr, "\nAsk a model to edit files matching the allowed globs and write its changes back.")
		fmt.Fprintln(os.Stderr, "\nExample: aiwriter -g 'docs/**/*.md' -p 'Fix spelling mistakes'")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if !flags.Changed("prompt") {
		cfg.Prompt = getenv(EnvPrompt)
	}
	cfg.Prompt = strings.TrimSpace(cfg.Prompt)

	if flags.Changed("paths") {
		cfg.PathsSet = true
	} else if v, ok := lookupEnv(EnvPaths); ok {
		paths, cfg.PathsSet = v, true
	}
	cfg.Paths = policy.SplitGlobs(paths)

	if !flags.Changed("model") {
		cfg.Model = getenv(EnvModel)
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if !flags.Changed("reasoning-effort") {
		if v, ok := lookupEnv(EnvReasoningEffort); ok {
			cfg.ReasoningEffort = v
		} else {
			cfg.ReasoningEffort = llm.DefaultReasoningEffort
		}
	}
	if !flags.Changed("base-url") {
		cfg.BaseURL = getenv(EnvBaseURL)
	}

	return cfg, nil
}

// Validate checks the inputs that must be present before the pipeline runs.
func (c *Config) Validate() error {
	if c.Prompt == "" {
		return fmt.Errorf("%w: no instruction given (set %s, pass --prompt or pipe it on stdin)", model.ErrConfiguration, EnvPrompt)
	}
	if !c.PathsSet {
		return fmt.Errorf("%w: no allowed globs given (set %s or pass --paths)", model.ErrConfiguration, EnvPaths)
	}
	return nil
}
