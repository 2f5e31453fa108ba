// Package patcher writes validated whole-file replacements to disk.
package patcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sokinpui/aiwriter/internal/fs"
	"github.com/sokinpui/aiwriter/model"
)

// Patcher applies change requests inside root under a fixed policy.
type Patcher struct {
	root   string
	policy model.Policy
	allow  fs.Allowlist
	logger *slog.Logger
}

// New creates a Patcher. A nil logger discards log output.
func New(root string, policy model.Policy, logger *slog.Logger) *Patcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Patcher{
		root:   root,
		policy: policy,
		allow:  fs.NewAllowlist(policy.AllowGlobs),
		logger: logger,
	}
}

// Apply writes each accepted change in order. Rejected changes are recorded
// in the summary and do not stop the run; a write failure does, without
// undoing earlier writes.
func (p *Patcher) Apply(changes []model.ChangeRequest) (model.Summary, error) {
	var summary model.Summary
	for _, change := range changes {
		rel, target, reason := p.check(change)
		if reason != "" {
			p.logger.Info("change rejected", "path", change.Path, "reason", reason)
			summary.Rejected = append(summary.Rejected, model.Rejection{Path: change.Path, Reason: reason})
			continue
		}

		action, err := fs.FileAction(target)
		if err != nil {
			return summary, fmt.Errorf("stat %s: %w", rel, err)
		}
		if action == "create" && !p.policy.AllowCreates {
			p.logger.Info("change rejected", "path", rel, "reason", "creation disallowed")
			summary.Rejected = append(summary.Rejected, model.Rejection{Path: change.Path, Reason: "creation disallowed"})
			continue
		}

		if err := writeFile(target, NormalizeLineEndings(change.Content)); err != nil {
			return summary, err
		}
		p.logger.Debug("change applied", "path", rel, "action", action)

		if action == "create" {
			summary.Created = append(summary.Created, rel)
		} else {
			summary.Modified = append(summary.Modified, rel)
		}
	}
	return summary, nil
}

// check returns the cleaned relative path and absolute target for an
// acceptable change, or a rejection reason.
func (p *Patcher) check(change model.ChangeRequest) (string, string, string) {
	ok, reason := p.allow.Qualifies(change.Path)
	if !ok {
		return "", "", reason
	}
	rel, _ := fs.CleanRel(change.Path)
	target := filepath.Join(p.root, filepath.FromSlash(rel))

	if info, err := os.Lstat(target); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if _, err := filepath.EvalSymlinks(target); err != nil {
			return "", "", "dangling symlink"
		}
	}
	if ok, reason := p.allow.QualifiesResolved(p.root, rel); !ok {
		return "", "", reason
	}
	if info, err := os.Stat(target); err == nil && !info.Mode().IsRegular() {
		return "", "", "not a regular file"
	}
	if strings.ContainsRune(change.Content, 0) {
		return "", "", "binary content"
	}
	return rel, target, ""
}

// NormalizeLineEndings converts CRLF and lone CR to LF.
func NormalizeLineEndings(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// writeFile replaces target's content, keeping the mode of an existing file.
func writeFile(target, content string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}
	if err := fs.CreateDirs(target); err != nil {
		return err
	}
	if err := os.WriteFile(target, []byte(content), mode); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}
