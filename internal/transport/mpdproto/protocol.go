// Package mpdproto serves the core over the MPD line protocol so stock MPD
// clients can drive it.
package mpdproto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// ProtocolVersion is announced in the connection greeting.
const ProtocolVersion = "0.23.5"

// ACK error codes.
const (
	ackNotImplemented = 0
	ackNotList        = 1
	ackArg            = 2
	ackPassword       = 3
	ackPermission     = 4
	ackUnknown        = 5
	ackNoExist        = 50
	ackPlaylistMax    = 51
	ackSystem         = 52
	ackPlaylistLoad   = 53
	ackUpdateAlready  = 54
	ackPlayerSync     = 55
	ackExist          = 56
)

// ackError is a protocol error reported as
// "ACK [code@index] {command} message".
type ackError struct {
	code    int
	index   int
	command string
	message string
}

func (e *ackError) Error() string {
	return fmt.Sprintf("ACK [%d@%d] {%s} %s", e.code, e.index, e.command, e.message)
}

func ack(code int, format string, args ...any) *ackError {
	return &ackError{code: code, message: fmt.Sprintf(format, args...)}
}

func notImplemented() *ackError {
	return ack(ackNotImplemented, "Not implemented")
}

// toAck maps err onto an ACK for command at list index.
func toAck(command string, index int, err error) *ackError {
	var a *ackError
	if errors.As(err, &a) {
		out := *a
		out.index = index
		return &out
	}

	code := ackSystem
	switch {
	case errors.Is(err, errors.ErrLookup):
		code = ackNoExist
	case errors.Is(err, errors.ErrInvalidOperation), errors.Is(err, errors.ErrStaleVersion):
		code = ackArg
	}
	return &ackError{code: code, index: index, command: command, message: err.Error()}
}

// tokenize splits a request line into words. Arguments may be bare or
// double-quoted with backslash escapes.
func tokenize(line string) ([]string, error) {
	var (
		words []string
		cur   strings.Builder
		inQ   bool
		have  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQ && c == '\\':
			if i+1 >= len(line) {
				return nil, ack(ackArg, "Incorrect arguments")
			}
			i++
			cur.WriteByte(line[i])
		case c == '"':
			if !inQ && have {
				return nil, ack(ackArg, "Invalid unquoted character")
			}
			inQ = !inQ
			have = true
			if !inQ {
				words = append(words, cur.String())
				cur.Reset()
				have = false
				if i+1 < len(line) && line[i+1] != ' ' && line[i+1] != '\t' {
					return nil, ack(ackArg, "Space expected after closing '\"'")
				}
			}
		case !inQ && (c == ' ' || c == '\t'):
			if have {
				words = append(words, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteByte(c)
			have = true
		}
	}
	if inQ {
		return nil, ack(ackArg, "Missing closing '\"'")
	}
	if have {
		words = append(words, cur.String())
	}
	return words, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ack(ackArg, "Integer expected: %s", s)
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, ack(ackArg, "Boolean (0/1) expected: %s", s)
}

// parseRange parses "N" as [N, N+1) and "START:END" or "START:" as a range;
// an open end is returned as -1.
func parseRange(s string) (start, end int, err error) {
	before, after, isRange := strings.Cut(s, ":")
	if start, err = parseInt(before); err != nil {
		return 0, 0, err
	}
	if start < 0 {
		return 0, 0, ack(ackArg, "Number is negative: %s", s)
	}
	if !isRange {
		return start, start + 1, nil
	}
	if after == "" {
		return start, -1, nil
	}
	if end, err = parseInt(after); err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, ack(ackArg, "Bad song index")
	}
	return start, end, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
