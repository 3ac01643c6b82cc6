package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// BenchmarkDo_FirstTry measures the tunnel-handshake path when the
// gateway answers at once.
func BenchmarkDo_FirstTry(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return nil }) //nolint:errcheck
	}
}

// BenchmarkDo_Permanent measures the early exit on an auth failure.
func BenchmarkDo_Permanent(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()
	fatal := errors.New("no SSH authentication methods available")

	for i := 0; i < b.N; i++ {
		bo.Do(ctx, func(int) error { return Permanent(fatal) }) //nolint:errcheck
	}
}

// BenchmarkDuration_Accept measures the delay computation the accept
// loop runs on every failure, deep into the capped range.
func BenchmarkDuration_Accept(b *testing.B) {
	bo := AcceptBackoff()
	for i := 0; i < b.N; i++ {
		_ = bo.Duration(1 + i%32)
	}
}

// BenchmarkJitter measures the jitter helper on its own.
func BenchmarkJitter(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = addJitter(100 * time.Millisecond)
	}
}
