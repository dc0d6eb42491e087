package classification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Repair stages reported by ParseError.
const (
	StageLocate   = "locate"
	StageDecode   = "decode"
	StageValidate = "validate"
)

// ParseError describes a model reply that could not be turned into a result.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response (%s): %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errNoObject = errors.New("no JSON object in response")

// decodeObject runs the repair pipeline and decodes the first JSON object.
func decodeObject(raw string) (map[string]any, error) {
	text := trimToObject(stripFences(raw))
	if text == "" {
		return nil, &ParseError{Stage: StageLocate, Err: errNoObject}
	}
	text = balance(text)

	var obj map[string]any
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&obj); err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}
	return obj, nil
}

// stripFences removes a leading ```lang line and a trailing ``` line.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// trimToObject drops any prose before the first opening brace.
func trimToObject(s string) string {
	idx := strings.IndexByte(s, '{')
	if idx < 0 {
		return ""
	}
	return s[idx:]
}

// balance repairs truncated output. Text after the last closing brace is cut,
// then any open string, array or object is closed. Anything after the first
// complete object is dropped.
func balance(s string) string {
	if !strings.HasSuffix(s, "}") {
		if last := strings.LastIndexByte(s, '}'); last > 0 {
			s = s[:last+1]
		}
	}

	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return s[:i+1]
				}
			}
		}
	}

	if !inString && len(stack) == 0 {
		return s
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n,")
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}
