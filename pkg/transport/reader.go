package transport

import (
	"context"
	"io"
)

// ChunkReader adapts a channel of byte chunks into an io.Reader, so the
// stream decoder can pull from a live link with a plain blocking read.
// When the channel closes the reader reports io.EOF; when the context is
// cancelled it reports the context's error.
type ChunkReader struct {
	ctx  context.Context
	in   <-chan []byte
	rest []byte
}

func NewChunkReader(ctx context.Context, in <-chan []byte) *ChunkReader {
	return &ChunkReader{ctx: ctx, in: in}
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		select {
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		case chunk, ok := <-r.in:
			if !ok {
				return 0, io.EOF
			}
			r.rest = chunk
		}
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}
