package main

import (
	"context"
	"time"
)

// getContext bounds startup and shutdown steps
func getContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
