package httpx

import (
	"errors"
	"net/http"
	"strconv"
)

// ErrResponseEnded is returned by End on a response that already ended.
var ErrResponseEnded = errors.New("response already terminated")

// Response buffers status and headers until End so a handler can set them
// in any order. It is not safe for concurrent use.
type Response struct {
	w      http.ResponseWriter
	r      *http.Request
	status int

	ended   bool
	closed  bool
	aborted bool
}

func NewResponse(w http.ResponseWriter, r *http.Request) *Response {
	return &Response{w: w, r: r, status: http.StatusOK}
}

func (res *Response) SetStatus(code int)  { res.status = code }
func (res *Response) Status() int         { return res.status }
func (res *Response) Header() http.Header { return res.w.Header() }

// End writes the status line, headers and body, terminating the response.
func (res *Response) End(body []byte) error {
	if res.ended || res.closed {
		return ErrResponseEnded
	}
	res.ended = true
	if res.w.Header().Get("Content-Length") == "" {
		res.w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	res.w.WriteHeader(res.status)
	if len(body) == 0 || res.r.Method == http.MethodHead {
		return nil
	}
	_, err := res.w.Write(body)
	return err
}

// Ended reports whether End has succeeded.
func (res *Response) Ended() bool { return res.ended }

// Terminated reports whether the response can no longer be written.
func (res *Response) Terminated() bool { return res.ended || res.closed }

// Close drops the underlying connection without writing a response. When
// the connection cannot be hijacked the response is marked aborted and the
// caller is expected to Abort once it is safe to unwind.
func (res *Response) Close() {
	if res.closed {
		return
	}
	res.closed = true
	conn, _, err := http.NewResponseController(res.w).Hijack()
	if err != nil {
		res.aborted = true
		return
	}
	_ = conn.Close()
}

// Aborted reports whether Close could not hijack the connection.
func (res *Response) Aborted() bool { return res.aborted }

func (res *Response) RemoteAddr() string { return res.r.RemoteAddr }

// Abort unwinds the current handler and makes net/http drop the
// connection without writing anything further.
func Abort() { panic(http.ErrAbortHandler) }
