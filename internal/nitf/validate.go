package nitf

import (
	"errors"
	"fmt"
)

// Problem is a structural inconsistency found by Validate.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	return p.Code + ": " + p.Message
}

// Validate cross-checks the header bookkeeping of a loaded layout. It does
// not inspect subheader contents.
func Validate(l *Layout) []Problem {
	var problems []Problem
	add := func(code, format string, args ...any) {
		problems = append(problems, Problem{Code: code, Message: fmt.Sprintf(format, args...)})
	}
	if !supportedVersions[l.Version] {
		add("version", "unsupported version %q", l.Version)
	}
	if l.FileLength != l.StoreLength {
		add("file-length", "FL is %d but the container holds %d bytes", l.FileLength, l.StoreLength)
	}
	if l.HeaderEnd != l.HeaderLength {
		add("header-length", "HL is %d but the header fields end at %d", l.HeaderLength, l.HeaderEnd)
	}
	if n := len(l.Kinds); n > 0 {
		last := l.Kinds[n-1].Data.End
		if last != l.FileLength {
			add("data-end", "segment data ends at %d but FL is %d", last, l.FileLength)
		}
		if last > l.StoreLength {
			add("truncated", "segment data ends at %d beyond the %d stored bytes", last, l.StoreLength)
		}
	}
	return problems
}

// Inspect loads a layout and validates it. A container whose header cannot
// be resolved at all is reported as an error rather than a problem.
func Inspect(store ByteStore) (*Layout, []Problem, error) {
	l, err := Load(store)
	if err != nil {
		return nil, nil, err
	}
	return l, Validate(l), nil
}

// IsNotFound reports whether err means a requested element does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIndexOutOfRange) || errors.Is(err, ErrFieldAbsent)
}
