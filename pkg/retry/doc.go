// Package retry runs an operation repeatedly with a backoff between attempts.
//
// It is used for per-article capture attempts (a fresh page each time,
// delays of min(2^attempt, 30) seconds) and for direct image downloads
// (three attempts, exponential 1s to 10s).
//
//	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
//		return fetch(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:  time.Second,
//			MaxDelay:   10 * time.Second,
//			Multiplier: 2.0,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  log,
//	})
//
// No delay follows the final attempt, and cancellation of ctx interrupts any
// pending delay.
package retry
