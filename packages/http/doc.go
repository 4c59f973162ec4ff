// Package http dispatches resolved test requests.
//
// It wraps the standard library's http client with:
//   - per-request timeouts and no implicit retries
//   - redirect, TLS and proxy configuration
//   - an optional shared rate limit
//   - classification of failures into TransportError kinds
//   - building requests from parsed steps and a placeholder resolver
package http
