// Package faults classifies pipeline failures so callers can decide between
// skipping a scene, aborting a stage, and reporting renderer diagnostics.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindAssetMissing
	KindUpstreamFailure
	KindRenderError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindAssetMissing:
		return "asset missing"
	case KindUpstreamFailure:
		return "upstream failure"
	case KindRenderError:
		return "render error"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. A *Error matches the sentinel of its Kind.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAssetMissing    = errors.New("asset missing")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRenderError     = errors.New("render error")
)

type Error struct {
	Kind Kind
	Op   string
	Path string
	// Detail is kept verbatim; for render errors it holds the renderer's stderr.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		b.WriteString("\n")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrAssetMissing:
		return e.Kind == KindAssetMissing
	case ErrUpstreamFailure:
		return e.Kind == KindUpstreamFailure
	case ErrRenderError:
		return e.Kind == KindRenderError
	}
	return false
}

func InvalidInput(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func AssetMissing(op, path string, err error) error {
	return &Error{Kind: KindAssetMissing, Op: op, Path: path, Err: err}
}

func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstreamFailure, Op: op, Err: err}
}

func Render(op, detail string, err error) error {
	return &Error{Kind: KindRenderError, Op: op, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
