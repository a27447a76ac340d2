package ratelimit_test

import (
	"context"
	"fmt"
	"time"

	"scout/internal/ratelimit"
)

func ExampleNewRateLimiter() {
	// Allow 100 link probes per second
	limiter := ratelimit.NewRateLimiter(100)

	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(ctx); err != nil {
			fmt.Println("Context cancelled")
			return
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("5 probes paced in under 100ms: %v\n", elapsed < 100*time.Millisecond)
	// Output: 5 probes paced in under 100ms: true
}

func ExampleRateLimiter_SetRate() {
	limiter := ratelimit.NewRateLimiter(10)
	limiter.SetRate(50)

	fmt.Println(limiter.Rate())
	// Output: 50
}
