// Package plugin routes acquirable files to the conversion routine registered
// for their slug and normalizes how those routines fail.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/raster"
)

// Job is one conversion request handed to a Processor.
type Job struct {
	Acquirable domain.Acquirable
	Dst        string
	Engine     raster.Engine
	Logger     *slog.Logger
}

// Processor converts one acquirable into products.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job) Result

func (f ProcessorFunc) Process(ctx context.Context, job Job) Result { return f(ctx, job) }

// Result is either a product batch or the error that prevented one.
type Result struct {
	Products []domain.Product
	Err      error
}

// Produced wraps a successful batch.
func Produced(products ...domain.Product) Result {
	return Result{Products: products}
}

// Failed wraps a routine failure.
func Failed(err error) Result {
	return Result{Err: err}
}

// Kind classifies a routine failure.
type Kind string

const (
	// InputAbsent means an expected subset, band, or variable is not in the source.
	InputAbsent Kind = "input-absent"
	// MalformedInput means the source is unreadable or lacks required metadata.
	MalformedInput Kind = "malformed-input"
)

// Error is a routine failure with the operation and code location it came from.
type Error struct {
	Kind     Kind
	Op       string
	Location string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Absent reports a missing input at the caller's location.
func Absent(op string, err error) *Error {
	return newError(InputAbsent, op, err, 2)
}

// Malformed reports an unusable input at the caller's location.
func Malformed(op string, err error) *Error {
	return newError(MalformedInput, op, err, 2)
}

// Classify picks Absent for errors wrapping fs.ErrNotExist and Malformed otherwise.
func Classify(op string, err error) *Error {
	if errors.Is(err, fs.ErrNotExist) {
		return newError(InputAbsent, op, err, 2)
	}
	return newError(MalformedInput, op, err, 2)
}

func newError(kind Kind, op string, err error, skip int) *Error {
	return &Error{Kind: kind, Op: op, Location: caller(skip + 1), Err: err}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// panicLocation returns the first frame below the runtime's panic machinery.
func panicLocation() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		}
		if !more {
			return "unknown"
		}
	}
}
