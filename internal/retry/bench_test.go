package retry

import (
	"context"
	"testing"
	"time"
)

// BenchmarkBackoff_FirstTry is the common case of a server that answers.
func BenchmarkBackoff_FirstTry(b *testing.B) {
	bo := DefaultBackoff()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bo.Do(ctx, func(_ int) error { return nil })
	}
}

func BenchmarkBreakers_Lookup(b *testing.B) {
	set := NewBreakers(nil)
	set.For("ftp.example:21")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = set.For("ftp.example:21").Execute(func() error { return nil })
	}
}

func BenchmarkCircuitBreaker_Open(b *testing.B) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(func() error { return errUnreachable })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(func() error { return nil })
	}
}
