package content

import (
	"context"
	"io"
)

// Stream yields the metachunks of a content in order. Once Next returns an
// error, every later call returns the same error. io.EOF marks the end.
type Stream struct {
	ctx   context.Context
	count int
	pos   int
	read  func(ctx context.Context, pos int) ([]byte, error)
	err   error
}

func newStream(ctx context.Context, count int, read func(ctx context.Context, pos int) ([]byte, error)) *Stream {
	return &Stream{ctx: ctx, count: count, read: read}
}

// Next returns the next metachunk.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pos >= s.count {
		s.err = io.EOF
		return nil, s.err
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return nil, err
	}

	data, err := s.read(s.ctx, s.pos)
	if err != nil {
		s.err = err
		return nil, err
	}
	s.pos++
	return data, nil
}

// Reader adapts the stream to io.Reader.
func (s *Stream) Reader() io.Reader {
	return &streamReader{stream: s}
}

type streamReader struct {
	stream *Stream
	buf    []byte
}

func (r *streamReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		data, err := r.stream.Next()
		if err != nil {
			return 0, err
		}
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
