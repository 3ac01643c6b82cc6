package util

import (
	"bufio"
	"io"
	"sync"
)

// DefaultBufSize is the standard buffer size for connection I/O (4 KiB).
const DefaultBufSize = 4 * 1024

var (
	readerPool sync.Pool
	writerPool sync.Pool
)

// GetReader returns a pooled bufio.Reader reset onto r.  Callers must
// return it with [PutReader] when the connection is done.
func GetReader(r io.Reader) *bufio.Reader {
	if v := readerPool.Get(); v != nil {
		br := v.(*bufio.Reader)
		br.Reset(r)
		return br
	}
	return bufio.NewReaderSize(r, DefaultBufSize)
}

// PutReader returns br to the pool for reuse.
func PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	readerPool.Put(br)
}

// GetWriter returns a pooled bufio.Writer reset onto w.
func GetWriter(w io.Writer) *bufio.Writer {
	if v := writerPool.Get(); v != nil {
		bw := v.(*bufio.Writer)
		bw.Reset(w)
		return bw
	}
	return bufio.NewWriterSize(w, DefaultBufSize)
}

// PutWriter returns bw to the pool for reuse.
func PutWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	writerPool.Put(bw)
}
