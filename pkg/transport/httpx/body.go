package httpx

import (
	"errors"
	"io"
	"net/http"
)

// ReadBody reads body in chunks of up to chunkSize bytes and hands each to
// onData. The final call has last set; when the body length is unknown
// (chunked encoding) that call carries an empty chunk. chunk is only valid
// for the duration of the call, and onData returning false stops reading.
// A read error other than EOF stops delivery and is returned; oversized
// bodies return *http.MaxBytesError.
func ReadBody(body io.Reader, length int64, chunkSize int, onData func(chunk []byte, last bool) bool) error {
	if body == nil || body == http.NoBody || length == 0 {
		onData(nil, true)
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 16 << 10
	}
	buf := make([]byte, chunkSize)
	var read int64
	for {
		n, err := body.Read(buf)
		read += int64(n)
		done := errors.Is(err, io.EOF) || (length > 0 && read >= length)
		if n > 0 {
			if !onData(buf[:n], done) || done {
				return nil
			}
		}
		if done {
			onData(nil, true)
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// IsTooLarge reports whether err came from an http.MaxBytesReader limit.
func IsTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
