// Package ratelimit provides a token bucket limiter that gates every
// request to the vendor API, which is rate-limited per credential.
package ratelimit
