package ratelimit

import (
	"context"
	"fmt"
	"strings"
)

const keyOrderIntake = "orders:intake:%s"

// IntakeLimiter throttles order submissions per client. A nil limiter
// allows everything.
type IntakeLimiter struct {
	bucket  Bucket
	backend string
	rate    float64
	burst   int
}

func NewIntakeLimiter(bucket Bucket, backend string, rate float64, burst int) (*IntakeLimiter, error) {
	if bucket == nil {
		return nil, fmt.Errorf("rate limit backend %q has no bucket", backend)
	}
	if err := validate("orders:intake", rate, burst); err != nil {
		return nil, err
	}
	return &IntakeLimiter{
		bucket:  bucket,
		backend: backend,
		rate:    rate,
		burst:   burst,
	}, nil
}

func (l *IntakeLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *IntakeLimiter) Backend() string {
	if !l.Enabled() {
		return "disabled"
	}
	return l.backend
}

func (l *IntakeLimiter) AllowClient(ctx context.Context, clientID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyOrderIntake, clientID), l.rate, l.burst)
}
