// Package httputil provides the JSON response and request helpers used by
// every handler in internal/api, so error envelopes and content types stay
// uniform across endpoints.
package httputil
