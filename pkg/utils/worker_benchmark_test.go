package utils

import (
	"context"
	"testing"
)

type noopTask struct{}

func (noopTask) Process(ctx context.Context) error { return nil }

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool("bench", 100)
	pool.Start()
	defer pool.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := pool.Submit(noopTask{}); err != nil {
			b.Fatalf("Submit failed: %v", err)
		}
	}
}

func BenchmarkWorkerPool_SubmitParallel(b *testing.B) {
	pool := NewWorkerPool("bench-parallel", 100)
	pool.Start()
	defer pool.Stop()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := pool.Submit(noopTask{}); err != nil {
				b.Fatalf("Submit failed in parallel: %v", err)
			}
		}
	})
}
