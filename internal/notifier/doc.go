// Package notifier delivers expiration notices.
//
// Service is the asynchronous pipeline behind expiry.Gateway: a bounded
// queue, a worker pool, a token-bucket rate limit and retries with
// jittered backoff. The actual transport is a Sender chosen once at
// startup ("telegram" or "log"). Every accepted notice gets exactly one
// completion callback, including notices still queued at shutdown.
package notifier
