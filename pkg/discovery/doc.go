// Package discovery implements the scroll-and-sample loop shared by board
// search and board expansion.
//
// A feed is scrolled in iterations. Each iteration scrolls and samples the
// list element a fixed number of times, then updates two stall counters:
// one for the page height, one for the number of distinct records seen. The
// loop keeps going while both counters are within their bounds and stops as
// soon as one of them is exceeded.
//
// Sampling failures reset both counters and are retried with backoff, after
// a reachability probe decides whether the page must be reloaded. Any other
// failure restarts the whole phase after a cooldown, up to a fixed number of
// times. Records gathered before a restart are kept.
package discovery
