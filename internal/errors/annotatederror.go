// Package errors provides errors annotated with structured [slog.Attr] and the source location where they were
// created. It re-exports the standard library helpers so callers only need to import one errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

type annotatedError struct {
	msg   string
	err   error
	attrs []slog.Attr
	frame runtime.Frame
}

func (e *annotatedError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *annotatedError) Unwrap() error {
	return e.err
}

// callerFrame returns the frame skip levels above its caller.
func callerFrame(skip int) runtime.Frame {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	return frame
}

// NewSentinel creates an error meant to be compared with [Is]. Sentinels carry no source location because they are
// declared at package level.
func NewSentinel(msg string) error {
	return stderrors.New(msg)
}

// New creates an error annotated with attrs and the caller's source location.
func New(msg string, attrs ...slog.Attr) error {
	return &annotatedError{
		msg:   msg,
		err:   nil,
		attrs: attrs,
		frame: callerFrame(1),
	}
}

// Wrap annotates err with a message, attrs and the caller's source location. Wrap returns nil if err is nil.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return &annotatedError{
		msg:   msg,
		err:   err,
		attrs: attrs,
		frame: callerFrame(1),
	}
}

// DecoratePanic converts the value returned by recover into an error pointing at the line that panicked. Returns nil
// when nothing panicked.
func DecoratePanic(recovered any) error {
	if recovered == nil {
		return nil
	}
	ae := &annotatedError{
		msg:   fmt.Sprintf("panic: %v", recovered),
		err:   nil,
		attrs: nil,
		frame: panicFrame(),
	}
	if err, ok := recovered.(error); ok {
		ae.msg = "panic"
		ae.err = err
	}
	return ae
}

// panicFrame finds the frame that called panic by locating runtime.gopanic on the stack.
func panicFrame() runtime.Frame {
	pcs := make([]uintptr, 32) //nolint:mnd // deep enough for the recover sites we use.
	n := runtime.Callers(2, pcs) //nolint:mnd // skip runtime.Callers and panicFrame.
	frames := runtime.CallersFrames(pcs[:n])
	sawPanic := false
	for {
		frame, more := frames.Next()
		if sawPanic {
			return frame
		}
		if frame.Function == "runtime.gopanic" {
			sawPanic = true
		}
		if !more {
			return runtime.Frame{}
		}
	}
}

// SlogError converts err into an "error" group containing the message, the annotations collected from the whole
// error tree and the source location of the innermost annotated error.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	var (
		annotations []any
		origin      runtime.Frame
	)
	walk(err, func(ae *annotatedError) {
		for _, a := range ae.attrs {
			annotations = append(annotations, a)
		}
		if ae.frame.File != "" {
			origin = ae.frame
		}
	})

	attrs := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Group("annotations", annotations...))
	}
	if origin.File != "" {
		attrs = append(attrs,
			slog.String("source", origin.File+":"+strconv.Itoa(origin.Line)),
			slog.String("function", origin.Function),
		)
	}
	return slog.Group("error", attrs...)
}

// walk visits every annotatedError in the tree rooted at err, outermost first.
func walk(err error, visit func(*annotatedError)) {
	if err == nil {
		return
	}
	if ae, ok := err.(*annotatedError); ok { //nolint:errorlint // walking the tree manually.
		visit(ae)
	}
	switch u := err.(type) { //nolint:errorlint // walking the tree manually.
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			walk(e, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}

// Is reports whether any error in err's tree matches target. See [errors.Is].
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target. See [errors.As].
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err. See [errors.Unwrap].
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors. See [errors.Join].
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
