package httpserver

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
)

// responseWriter wraps http.ResponseWriter to record the status code and
// byte count, and optionally tee the body into a bounded buffer.
//
// Writes always go straight to the underlying writer, so the client sees
// exactly what the handler wrote and write errors reach the handler.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
	wroteHeader  bool

	capture      *bytes.Buffer
	captureLimit int
	truncated    bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

// wrapResponseWriterWithBody also retains up to limit+1 body bytes, enough
// to tell whether the body exceeded limit.
func wrapResponseWriterWithBody(w http.ResponseWriter, limit int) *responseWriter {
	rw := wrapResponseWriter(w)
	rw.capture = &bytes.Buffer{}
	rw.captureLimit = limit
	return rw
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)

	if rw.capture != nil && n > 0 {
		room := rw.captureLimit + 1 - rw.capture.Len()
		switch {
		case room <= 0:
			rw.truncated = true
		case n > room:
			rw.capture.Write(b[:room])
			rw.truncated = true
		default:
			rw.capture.Write(b[:n])
		}
	}
	return n, err
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) BytesWritten() int64 {
	return rw.bytesWritten
}

func (rw *responseWriter) WroteHeader() bool {
	return rw.wroteHeader
}

// CapturedBody returns the teed body and whether it exceeded the capture limit.
func (rw *responseWriter) CapturedBody() ([]byte, bool) {
	if rw.capture == nil {
		return nil, false
	}
	return rw.capture.Bytes(), rw.truncated || rw.capture.Len() > rw.captureLimit
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (rw *responseWriter) Push(target string, opts *http.PushOptions) error {
	if p, ok := rw.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}
