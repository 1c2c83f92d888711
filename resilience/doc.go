// Package resilience retries failing operations with exponential backoff.
//
// Each attempt receives its 1-based number so callers can record per-attempt
// progress:
//
//	err := resilience.RetryFunc(ctx, resilience.RetryConfig{
//	    MaxAttempts:    cfg.Retries + 1,
//	    InitialBackoff: cfg.BackoffBase,
//	}, func(ctx context.Context, attempt int) error {
//	    return build(ctx, port)
//	})
package resilience
