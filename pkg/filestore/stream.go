package filestore

import (
	"context"
	"errors"
	"io"
	"sync"
)

// sourceReader wraps an upload body. It counts bytes handed to the blob store,
// fails once ctx is done, and remembers the first error produced by the
// source itself so a client-side abort can be told apart from a store failure.
type sourceReader struct {
	ctx context.Context
	r   io.Reader

	mu     sync.Mutex
	n      int64
	srcErr error
}

func newSourceReader(ctx context.Context, r io.Reader) *sourceReader {
	return &sourceReader{ctx: ctx, r: r}
}

func (s *sourceReader) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		s.setErr(err)
		return 0, err
	}
	n, err := s.r.Read(p)
	s.mu.Lock()
	s.n += int64(n)
	s.mu.Unlock()
	if err != nil && !errors.Is(err, io.EOF) {
		s.setErr(err)
	}
	return n, err
}

func (s *sourceReader) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srcErr == nil {
		s.srcErr = err
	}
}

// Count returns the number of bytes read from the source so far
func (s *sourceReader) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Err returns the first error raised by the source, if any
func (s *sourceReader) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srcErr
}

// sizedReadCloser reports io.ErrUnexpectedEOF when the underlying blob ends
// before the size recorded in the catalog.
type sizedReadCloser struct {
	rc        io.ReadCloser
	remaining int64
}

func newSizedReadCloser(rc io.ReadCloser, size int64) *sizedReadCloser {
	return &sizedReadCloser{rc: rc, remaining: size}
}

func (s *sizedReadCloser) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	s.remaining -= int64(n)
	if errors.Is(err, io.EOF) && s.remaining > 0 {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (s *sizedReadCloser) Close() error {
	return s.rc.Close()
}
