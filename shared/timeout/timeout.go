package timeout

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TimeoutConfig holds timeout configuration
type TimeoutConfig struct {
	Default     time.Duration
	Database    time.Duration
	Redis       time.Duration
	HTTP        time.Duration
	Provider    time.Duration
	FileUpload  time.Duration
	LongRunning time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Default:     30 * time.Second,
		Database:    5 * time.Second,
		Redis:       2 * time.Second,
		HTTP:        30 * time.Second,
		Provider:    20 * time.Second,
		FileUpload:  5 * time.Minute,
		LongRunning: 10 * time.Minute,
	}
}

// WithTimeout creates a context with timeout
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second // Default timeout
	}
	return context.WithTimeout(ctx, timeout)
}

// WithDeadline creates a context with deadline
func WithDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, deadline)
}

// TimeoutMiddleware is an HTTP middleware that adds request timeouts
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Create context with timeout
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			// Channel to track if handler completes
			done := make(chan struct{})

			// Run handler in goroutine
			go func() {
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			// Wait for completion or timeout
			select {
			case <-done:
				// Handler completed successfully
			case <-ctx.Done():
				// Timeout occurred
				http.Error(w, "Request timeout", http.StatusRequestTimeout)
			}
		})
	}
}

// DatabaseTimeout wraps database operations with timeout
func DatabaseTimeout(ctx context.Context, config *TimeoutConfig, fn func(context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, config.Database)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(timeoutCtx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("database operation timeout after %v", config.Database)
	}
}

// RedisTimeout wraps Redis operations with timeout
func RedisTimeout(ctx context.Context, config *TimeoutConfig, fn func(context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, config.Redis)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(timeoutCtx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("redis operation timeout after %v", config.Redis)
	}
}

// ProviderTimeout wraps an evidence-provider HTTP call with timeout,
// the replacement for the teacher's BlockchainTimeout in this domain.
func ProviderTimeout(ctx context.Context, config *TimeoutConfig, fn func(context.Context) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, config.Provider)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(timeoutCtx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("provider operation timeout after %v", config.Provider)
	}
}

// TimeoutTracker tracks operation timeouts for monitoring
type TimeoutTracker struct {
	operations map[string]*OperationStats
}

// OperationStats holds timeout statistics for an operation
type OperationStats struct {
	TotalCalls    int64
	TimeoutCount  int64
	SuccessCount  int64
	TotalDuration time.Duration
	MaxDuration   time.Duration
	LastTimeout   time.Time
}

// NewTimeoutTracker creates a new timeout tracker
func NewTimeoutTracker() *TimeoutTracker {
	return &TimeoutTracker{
		operations: make(map[string]*OperationStats),
	}
}

// Track tracks an operation execution
func (t *TimeoutTracker) Track(operation string, duration time.Duration, timedOut bool) {
	stats, ok := t.operations[operation]
	if !ok {
		stats = &OperationStats{}
		t.operations[operation] = stats
	}

	stats.TotalCalls++
	stats.TotalDuration += duration

	if duration > stats.MaxDuration {
		stats.MaxDuration = duration
	}

	if timedOut {
		stats.TimeoutCount++
		stats.LastTimeout = time.Now()
	} else {
		stats.SuccessCount++
	}
}

// GetStats returns statistics for an operation
func (t *TimeoutTracker) GetStats(operation string) *OperationStats {
	return t.operations[operation]
}

// GetAllStats returns all operation statistics
func (t *TimeoutTracker) GetAllStats() map[string]*OperationStats {
	return t.operations
}
