package telemetry

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
)

const (
	maxInnerDepth = 10
	maxFrames     = 64
)

// ExceptionInfo describes a panic or error that escaped a handler.
//
// Inner holds the unwrap chain: one entry for a wrapped error, or one entry
// per joined error, in order, for errors created with errors.Join.
type ExceptionInfo struct {
	Type         string          `json:"type"`
	Message      string          `json:"message"`
	Source       string          `json:"source,omitempty"`
	Code         int             `json:"code,omitempty"`
	TargetMethod string          `json:"targetMethod,omitempty"`
	StackTrace   string          `json:"stackTrace,omitempty"`
	FileName     string          `json:"fileName,omitempty"`
	LineNumber   int             `json:"lineNumber,omitempty"`
	Inner        []ExceptionInfo `json:"innerExceptions,omitempty"`
}

// CapturePanic describes a recovered panic value. It must be called from the
// deferred function that recovered, so the panicking frames are still on the stack.
func CapturePanic(rec any) *ExceptionInfo {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(2, pcs)

	info := describe(rec)
	locate(info, panicFrames(pcs[:n]))
	return info
}

// CaptureError describes err using the stack of its caller. skip is the
// number of additional frames to skip above the caller of CaptureError.
func CaptureError(err error, skip int) *ExceptionInfo {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(2+skip, pcs)

	info := describe(err)
	locate(info, userFrames(pcs[:n]))
	return info
}

func describe(v any) *ExceptionInfo {
	info := &ExceptionInfo{Type: fmt.Sprintf("%T", v)}

	err, ok := v.(error)
	if !ok {
		info.Message = fmt.Sprint(v)
		return info
	}
	info.Message = err.Error()
	info.Code = errorCode(err)
	info.Inner = innerChain(err, 1)
	return info
}

func innerChain(err error, depth int) []ExceptionInfo {
	if depth > maxInnerDepth {
		return nil
	}

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		errs := u.Unwrap()
		out := make([]ExceptionInfo, 0, len(errs))
		for _, e := range errs {
			if e != nil {
				out = append(out, describeInner(e, depth))
			}
		}
		return out
	case interface{ Unwrap() error }:
		if e := u.Unwrap(); e != nil {
			return []ExceptionInfo{describeInner(e, depth)}
		}
	}
	return nil
}

func describeInner(err error, depth int) ExceptionInfo {
	return ExceptionInfo{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Code:    errorCode(err),
		Inner:   innerChain(err, depth+1),
	}
}

// errorCode extracts a numeric code: an OS errno, an HTTP status, or a Code() value.
func errorCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	var status interface{ StatusCode() int }
	if errors.As(err, &status) {
		return status.StatusCode()
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return 0
}

// panicFrames returns the frames below runtime.gopanic, without runtime frames.
func panicFrames(pcs []uintptr) []runtime.Frame {
	all := collectFrames(pcs)
	for i, f := range all {
		if f.Function == "runtime.gopanic" {
			return withoutRuntime(all[i+1:])
		}
	}
	return withoutRuntime(all)
}

func userFrames(pcs []uintptr) []runtime.Frame {
	return withoutRuntime(collectFrames(pcs))
}

func collectFrames(pcs []uintptr) []runtime.Frame {
	frames := runtime.CallersFrames(pcs)
	var out []runtime.Frame
	for {
		f, more := frames.Next()
		out = append(out, f)
		if !more {
			break
		}
	}
	return out
}

func withoutRuntime(frames []runtime.Frame) []runtime.Frame {
	out := frames[:0:0]
	for _, f := range frames {
		if !strings.HasPrefix(f.Function, "runtime.") {
			out = append(out, f)
		}
	}
	return out
}

func locate(info *ExceptionInfo, frames []runtime.Frame) {
	if len(frames) == 0 {
		info.StackTrace = string(debug.Stack())
		info.FileName, info.LineNumber = lineFromTrace(info.StackTrace)
		return
	}

	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	info.StackTrace = b.String()

	site := frames[0]
	info.TargetMethod = site.Function
	info.Source = packageOf(site.Function)
	info.FileName = site.File
	info.LineNumber = site.Line
	if info.LineNumber == 0 {
		info.FileName, info.LineNumber = lineFromTrace(info.StackTrace)
	}
}

var traceLine = regexp.MustCompile(`(?m)^\s+(\S+\.go):(\d+)`)

// lineFromTrace finds the first non-runtime file:line in a formatted stack trace.
func lineFromTrace(trace string) (string, int) {
	for _, m := range traceLine.FindAllStringSubmatch(trace, -1) {
		if strings.Contains(m[1], "/runtime/") {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err == nil {
			return m[1], line
		}
	}
	return "", 0
}

// packageOf returns the import path of a fully qualified function name.
func packageOf(function string) string {
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return function
	}
	return function[:slash+1+dot]
}
