// Package parser turns raw model output into a validated change list.
//
// The service wraps its JSON inconsistently (bare, fenced in markdown, or
// surrounded by prose), so decoding tries an ordered list of strategies. Each
// strategy only chooses which substring to parse; the parse itself is strict.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sokinpui/aiwriter/model"
)

// Strategy proposes the part of a raw response that should hold the JSON
// object. ok is false when the strategy finds nothing to try.
type Strategy struct {
	Name      string
	Candidate func(raw string) (candidate string, ok bool)
}

// Strict tries the whole response.
var Strict = Strategy{
	Name: "strict",
	Candidate: func(raw string) (string, bool) {
		raw = strings.TrimSpace(raw)
		return raw, raw != ""
	},
}

// Fenced tries the first markdown code block whose body is a JSON object,
// preferring blocks tagged as json.
var Fenced = Strategy{
	Name: "fenced",
	Candidate: func(raw string) (string, bool) {
		blocks, err := ExtractCodeBlocks([]byte(raw))
		if err != nil {
			return "", false
		}
		var fallback string
		for _, b := range blocks {
			body := strings.TrimSpace(b.Content)
			if !strings.HasPrefix(body, "{") {
				continue
			}
			if isJSONLang(b.Lang) {
				return body, true
			}
			if fallback == "" {
				fallback = body
			}
		}
		return fallback, fallback != ""
	},
}

func isJSONLang(info string) bool {
	lang, _, _ := strings.Cut(info, " ")
	return strings.EqualFold(lang, "json")
}

// Substring tries the greedy span from the first '{' to the last '}'.
var Substring = Strategy{
	Name: "substring",
	Candidate: func(raw string) (string, bool) {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end < start {
			return "", false
		}
		return raw[start : end+1], true
	},
}

// DefaultStrategies is the order used by the pipeline.
var DefaultStrategies = []Strategy{Strict, Fenced, Substring}

// Result is a decoded change list.
type Result struct {
	Changes []model.ChangeRequest
	// Malformed counts entries skipped for missing or mistyped fields.
	Malformed int
	// Strategy names the strategy that produced the result.
	Strategy string
}

// DecodeError reports that no strategy produced a usable change list.
type DecodeError struct {
	Raw    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to parse model output as JSON: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return model.ErrDecode }

// Decode extracts the change list from raw using strategies in order, or
// DefaultStrategies when none are given.
func Decode(raw string, strategies ...Strategy) (Result, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	var reasons []string
	for _, s := range strategies {
		candidate, ok := s.Candidate(raw)
		if !ok {
			continue
		}
		res, err := decodeObject(candidate)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", s.Name, err))
			continue
		}
		res.Strategy = s.Name
		return res, nil
	}

	reason := "no JSON object found"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}
	return Result{}, &DecodeError{Raw: raw, Reason: reason}
}

var errNotArray = errors.New("'changes' is not an array")

// decodeObject parses exactly one JSON object with a 'changes' array.
func decodeObject(candidate string) (Result, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return Result{}, err
	}
	if envelope == nil {
		return Result{}, errors.New("not a JSON object")
	}
	rawChanges, ok := envelope["changes"]
	if !ok {
		return Result{}, errors.New("missing 'changes'")
	}
	if !isKind(rawChanges, '[') {
		return Result{}, errNotArray
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawChanges, &entries); err != nil {
		return Result{}, errNotArray
	}

	res := Result{Changes: make([]model.ChangeRequest, 0, len(entries))}
	for _, entry := range entries {
		change, ok := validateEntry(entry)
		if !ok {
			res.Malformed++
			continue
		}
		res.Changes = append(res.Changes, change)
	}
	return res, nil
}

// validateEntry accepts an object whose path and content are both strings.
func validateEntry(entry json.RawMessage) (model.ChangeRequest, bool) {
	if !isKind(entry, '{') {
		return model.ChangeRequest{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return model.ChangeRequest{}, false
	}

	path, ok := stringField(fields, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return model.ChangeRequest{}, false
	}
	content, ok := stringField(fields, "content")
	if !ok {
		return model.ChangeRequest{}, false
	}
	return model.ChangeRequest{Path: path, Content: content}, true
}

// stringField unmarshals fields[name] only when it is a JSON string; null
// would otherwise decode silently to "".
func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok || !isKind(raw, '"') {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// isKind reports whether the JSON value starts with the given delimiter.
func isKind(raw json.RawMessage, delim byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == delim
}
