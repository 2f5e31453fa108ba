package aiwriter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sokinpui/aiwriter/cli"
	"github.com/sokinpui/aiwriter/model"
)

// stubProposer returns a canned response and counts calls.
type stubProposer struct {
	response string
	err      error
	calls    int
	files    string
	panics   bool
}

func (s *stubProposer) Propose(_ context.Context, _, files string) (string, error) {
	s.calls++
	s.files = files
	if s.panics {
		panic("boom")
	}
	return s.response, s.err
}

func noEnv(string) (string, bool) { return "", false }

func setupRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newApp(t *testing.T, root string, globs []string, stub *stubProposer) *App {
	t.Helper()
	cfg := &cli.Config{
		Prompt:     "Append world",
		Paths:      globs,
		PathsSet:   true,
		Root:       root,
		PolicyPath: ".ai-policy.yml",
	}
	app, err := New(cfg, WithProposer(stub), WithLookupEnv(noEnv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestExecuteEndToEndFramedResponse(t *testing.T) {
	root := setupRepo(t, map[string]string{"docs/readme.md": "Hello"})
	stub := &stubProposer{response: `Sure! {"changes":[{"path":"docs/readme.md","content":"Hello world"}]}`}

	summary, err := newApp(t, root, []string{"docs/*.md"}, stub).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Applied() != 1 {
		t.Errorf("Applied() = %d, want 1 (%+v)", summary.Applied(), summary)
	}
	if got := readFile(t, root, "docs/readme.md"); got != "Hello world" {
		t.Errorf("docs/readme.md = %q", got)
	}
	if !strings.Contains(stub.files, "=== FILE: docs/readme.md ===\nHello") {
		t.Errorf("bundle sent to the model = %q", stub.files)
	}
}

func TestExecuteEndToEndOutsideAllowlist(t *testing.T) {
	root := setupRepo(t, map[string]string{"docs/readme.md": "Hello"})
	stub := &stubProposer{response: `{"changes":[{"path":"secrets/key.txt","content":"x"}]}`}

	summary, err := newApp(t, root, []string{"docs/*.md"}, stub).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Applied() != 0 || len(summary.Rejected) != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(root, "secrets", "key.txt")); !os.IsNotExist(err) {
		t.Errorf("secrets/key.txt must not exist, stat err = %v", err)
	}
	if got := readFile(t, root, "docs/readme.md"); got != "Hello" {
		t.Errorf("docs/readme.md = %q", got)
	}
}

func TestExecuteDecoderToleranceMatchesBareResponse(t *testing.T) {
	body := `{"changes":[{"path":"docs/a.md","content":"A2"},{"path":"docs/b.md","content":"B2\r\n"}]}`
	responses := map[string]string{
		"bare":   body,
		"fenced": "Here are the edits:\n\n```json\n" + body + "\n```\n\nAnything else?",
		"prose":  "Here are the edits:\n" + body + "\nAnything else?",
	}

	var want map[string]string
	for _, name := range []string{"bare", "fenced", "prose"} {
		root := setupRepo(t, map[string]string{"docs/a.md": "A", "docs/b.md": "B"})
		stub := &stubProposer{response: responses[name]}

		summary, err := newApp(t, root, []string{"docs/*.md"}, stub).Execute(context.Background())
		if err != nil {
			t.Fatalf("%s: Execute: %v", name, err)
		}
		if summary.Applied() != 2 {
			t.Errorf("%s: Applied() = %d", name, summary.Applied())
		}
		got := map[string]string{"a": readFile(t, root, "docs/a.md"), "b": readFile(t, root, "docs/b.md")}
		if want == nil {
			want = got
			continue
		}
		if got["a"] != want["a"] || got["b"] != want["b"] {
			t.Errorf("%s: files = %v, want %v", name, got, want)
		}
	}
	if want["b"] != "B2\n" {
		t.Errorf("line endings not normalized: %q", want["b"])
	}
}

func TestExecutePartialEntries(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a", "b.md": "b", "c.md": "c"})
	stub := &stubProposer{response: `{"changes":[
		{"path":"a.md","content":"A"},
		{"path":"b.md","content":42},
		{"content":"orphan"},
		{"path":"c.md","content":"C"}
	]}`}

	summary, err := newApp(t, root, []string{"*.md"}, stub).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Applied() != 2 || summary.Malformed != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if readFile(t, root, "b.md") != "b" {
		t.Error("malformed entry must not touch b.md")
	}
}

func TestExecuteBudgetGate(t *testing.T) {
	root := setupRepo(t, map[string]string{
		"a.md":           strings.Repeat("x", 60),
		"b.md":           strings.Repeat("y", 60),
		".ai-policy.yml": "max_bytes: 100\n",
	})
	stub := &stubProposer{response: `{"changes":[]}`}

	_, err := newApp(t, root, []string{"*.md"}, stub).Execute(context.Background())
	if !errors.Is(err, model.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "120 bytes exceeds limit 100") {
		t.Errorf("error should report measured size and limit: %v", err)
	}
	if stub.calls != 0 {
		t.Errorf("proposer called %d times despite the budget failure", stub.calls)
	}
}

func TestExecuteNothingToEdit(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.txt": "a"})
	stub := &stubProposer{}

	for _, globs := range [][]string{nil, {"*.md"}} {
		summary, err := newApp(t, root, globs, stub).Execute(context.Background())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if summary.Message != MsgNothingToEdit {
			t.Errorf("Message = %q", summary.Message)
		}
	}
	if stub.calls != 0 {
		t.Errorf("proposer called %d times with no candidates", stub.calls)
	}
}

func TestExecuteDecodeFailureIsNotAnError(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a"})
	stub := &stubProposer{response: "I'm sorry, I can't help with that."}

	summary, err := newApp(t, root, []string{"*.md"}, stub).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !summary.DecodeFailed || summary.Raw != stub.response || summary.Applied() != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if readFile(t, root, "a.md") != "a" {
		t.Error("a.md changed after a decode failure")
	}
}

func TestExecuteNoChanges(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a"})
	stub := &stubProposer{response: `{"changes": []}`}

	summary, err := newApp(t, root, []string{"*.md"}, stub).Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Message != MsgNoChanges || summary.Applied() != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestExecuteServiceErrorPropagates(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a"})
	stub := &stubProposer{err: model.ErrService}

	_, err := newApp(t, root, []string{"*.md"}, stub).Execute(context.Background())
	if !errors.Is(err, model.ErrService) {
		t.Fatalf("expected ErrService, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want exactly one attempt", stub.calls)
	}
}

func TestExecuteMissingCredentials(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a"})
	cfg := &cli.Config{Prompt: "x", Paths: []string{"*.md"}, PathsSet: true, Root: root}
	app, err := New(cfg, WithLookupEnv(noEnv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = app.Execute(context.Background())
	if !errors.Is(err, model.ErrCredential) {
		t.Fatalf("expected ErrCredential, got %v", err)
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a"})
	stub := &stubProposer{panics: true}

	_, err := newApp(t, root, []string{"*.md"}, stub).Execute(context.Background())
	var de *DetailedError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DetailedError, got %v", err)
	}
	if len(de.Stack) == 0 {
		t.Error("stack trace missing")
	}
}

func TestExecuteReportsProgress(t *testing.T) {
	root := setupRepo(t, map[string]string{"a.md": "a"})
	app := newApp(t, root, []string{"*.md"}, &stubProposer{response: `{"changes":[]}`})

	var stages []string
	app.SetProgressCallback(func(stage string) { stages = append(stages, stage) })
	if _, err := app.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{StageCollect, StagePropose, StageApply}
	if strings.Join(stages, ",") != strings.Join(want, ",") {
		t.Errorf("stages = %v, want %v", stages, want)
	}
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	root := setupRepo(t, map[string]string{".ai-policy.yml": "max_bytes: nope\n"})

	cases := []*cli.Config{
		{Prompt: "", Paths: []string{"*.md"}, PathsSet: true, Root: root},
		{Prompt: "x", Root: root},
		{Prompt: "x", Paths: []string{"*.md"}, PathsSet: true, Root: root},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, model.ErrConfiguration) {
			t.Errorf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestPolicyOverlayReplacesGlobs(t *testing.T) {
	root := setupRepo(t, map[string]string{
		"docs/a.md":      "a",
		"src/main.go":    "package main",
		".ai-policy.yml": "allow_globs: [\"src/*.go\"]\nallow_creates: false\n",
	})
	stub := &stubProposer{response: `{"changes":[
		{"path":"docs/a.md","content":"changed"},
		{"path":"src/main.go","content":"package main\n"},
		{"path":"src/new.go","content":"package main\n"}
	]}`}

	app := newApp(t, root, []string{"docs/*.md"}, stub)
	if p := app.Policy(); p.AllowCreates || len(p.AllowGlobs) != 1 || p.AllowGlobs[0] != "src/*.go" {
		t.Errorf("Policy() = %+v", p)
	}
	summary, err := app.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(stub.files, "docs/a.md") {
		t.Error("docs/a.md was sent although the overlay replaced the globs")
	}
	if summary.Applied() != 1 || len(summary.Rejected) != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if readFile(t, root, "docs/a.md") != "a" {
		t.Error("docs/a.md changed")
	}
}

func TestExecuteLogsRequestedModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output_text":"{\"changes\":[]}"}`))
	}))
	defer srv.Close()

	root := setupRepo(t, map[string]string{"docs/a.md": "a"})
	cfg := &cli.Config{
		Prompt:   "noop",
		Paths:    []string{"docs/*.md"},
		PathsSet: true,
		Root:     root,
		Model:    "gpt-test",
		BaseURL:  srv.URL,
	}
	var logs bytes.Buffer
	env := func(k string) (string, bool) {
		if k == "OPENAI_API_KEY" {
			return "sk-test", true
		}
		return "", false
	}
	app, err := New(cfg, WithLookupEnv(env), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	summary, err := app.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Message != MsgNoChanges {
		t.Errorf("Message = %q", summary.Message)
	}
	if !strings.Contains(logs.String(), "model=gpt-test") {
		t.Errorf("model not logged:\n%s", logs.String())
	}
}
