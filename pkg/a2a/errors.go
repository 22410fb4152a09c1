package a2a

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Error is a structured A2A protocol error, decomposed from the string
// convention used on the SSE channel:
//
//	<prefix>: <message> (Code: <int>) Data: <json>
//
// The format is fixed by the agent runtimes, so the parser is retained for
// compatibility even though errors produced in-process are structured.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (Code: ")
	b.WriteString(strconv.Itoa(e.Code))
	b.WriteString(")")
	return b.String()
}

var (
	streamingPrefixPattern = regexp.MustCompile(`^Error during streaming for [^:]+:\s*`)
	codePattern            = regexp.MustCompile(`\(Code:\s*(-?\d+)\)`)
	dataPattern            = regexp.MustCompile(`Data:\s*(.+)$`)
)

const sseErrorPrefix = "SSE event contained an error:"

// ParseError decomposes an error produced by the streaming layer into its
// structured form. A nil error yields {Code: -1, Message: "Unknown error"}.
// A missing or malformed code defaults to -1; malformed JSON in the Data
// segment degrades to nil data.
func ParseError(err error) *Error {
	if err == nil {
		return &Error{Code: -1, Message: "Unknown error"}
	}
	return ParseErrorString(err.Error())
}

// ParseErrorString is ParseError for raw message strings.
func ParseErrorString(msg string) *Error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return &Error{Code: -1, Message: "Unknown error"}
	}

	if rest, ok := strings.CutPrefix(msg, sseErrorPrefix); ok {
		msg = strings.TrimSpace(rest)
	}
	msg = streamingPrefixPattern.ReplaceAllString(msg, "")

	parsed := &Error{Code: -1, Message: msg}

	if m := dataPattern.FindStringSubmatch(msg); m != nil {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &data); err == nil {
			parsed.Data = data
		}
		msg = strings.TrimSpace(strings.TrimSuffix(msg, m[0]))
	}

	if m := codePattern.FindStringSubmatch(msg); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			parsed.Code = code
		}
		msg = strings.TrimSpace(strings.Replace(msg, m[0], "", 1))
	}

	if msg != "" {
		parsed.Message = msg
	}
	if parsed.Message == "" {
		parsed.Message = "Unknown error"
	}

	return parsed
}
