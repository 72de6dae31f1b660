// Package retry provides backoff strategies and a bounded retry loop.
//
// Every retrying component in pinscraper goes through this package: the
// checkpoint writer's single delayed re-try, the media fetcher and the
// discovery loop's transient backoff and fatal cooldown (via Wait).
//
//	err := retry.Do(func() error {
//		return fetch(ctx, url)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.NewKindBackoff(),
//		Context:     ctx,
//		Logger:      logger.GetLogger(),
//	})
//
// DefaultRetryIf consults the error kinds from pkg/errors: transient network
// and extraction failures and persistence failures are retried, HTTP status
// errors are retried for 429 and 5xx, and a cancelled context never is.
// KindBackoff chooses a longer strategy for throttled responses.
package retry
