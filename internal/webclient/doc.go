// Package webclient is the HTTP transport of the conditions database client.
//
// A Client issues GET and POST requests against the conditions web services.
// Responses with status 504 are retried with exponential backoff: the first
// wait is two seconds, each subsequent wait doubles, and every wait carries a
// uniform jitter in [0, 1s). Retrying stops once the accumulated wait would
// exceed the client's timeout. Any other non-200 status is returned as a
// *StatusError without retrying.
//
// POST bodies may be signed with a shared password. The signature is an
// HMAC-SHA256 over the per-request salt followed by the body, sent as the
// X-Salt and X-Signature headers.
package webclient
