package api

import (
	"errors"
	"io"
	"net/http"
	"time"
)

// deadlineReader extends the connection read deadline before every Read so
// a stalled client fails the upload after one idle period instead of holding
// it open.
type deadlineReader struct {
	rc      *http.ResponseController
	r       io.Reader
	timeout time.Duration
}

func newDeadlineReader(rc *http.ResponseController, r io.Reader, timeout time.Duration) io.Reader {
	if timeout <= 0 {
		return r
	}
	return &deadlineReader{rc: rc, r: r, timeout: timeout}
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.rc.SetReadDeadline(time.Now().Add(d.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return 0, err
	}
	return d.r.Read(p)
}

// deadlineWriter does the same for each write of a download
type deadlineWriter struct {
	rc      *http.ResponseController
	w       io.Writer
	timeout time.Duration
}

func newDeadlineWriter(rc *http.ResponseController, w io.Writer, timeout time.Duration) io.Writer {
	if timeout <= 0 {
		return w
	}
	return &deadlineWriter{rc: rc, w: w, timeout: timeout}
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if err := d.rc.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return 0, err
	}
	return d.w.Write(p)
}
