package util

import (
	"bufio"
	"bytes"
	"testing"
)

// BenchmarkReaderPool measures the allocation advantage of sync.Pool
// reader reuse versus fresh allocation.
func BenchmarkReaderPool(b *testing.B) {
	src := bytes.NewReader(nil)
	b.Run("pool", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			br := GetReader(src)
			PutReader(br)
		}
	})
	b.Run("alloc", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			br := bufio.NewReaderSize(src, DefaultBufSize)
			_ = br
		}
	})
}

func TestPool_RoundTrip(t *testing.T) {
	br := GetReader(bytes.NewBufferString("abc"))
	if br.Size() < DefaultBufSize {
		t.Errorf("reader size = %d, want >= %d", br.Size(), DefaultBufSize)
	}
	got, _ := br.ReadString('c')
	if got != "abc" {
		t.Errorf("read %q, want %q", got, "abc")
	}
	PutReader(br)

	var out bytes.Buffer
	bw := GetWriter(&out)
	bw.WriteString("xyz") //nolint:errcheck
	bw.Flush()            //nolint:errcheck
	PutWriter(bw)
	if out.String() != "xyz" {
		t.Errorf("wrote %q, want %q", out.String(), "xyz")
	}
}

func TestPut_Nil(t *testing.T) {
	// Should not panic.
	PutReader(nil)
	PutWriter(nil)
}
