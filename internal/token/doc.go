// Package token keeps Zoom access tokens usable. Manager reads the stored
// credential on every call and refreshes it when it expires within
// RefreshMargin, so callers always receive a token valid for at least two
// more minutes.
package token
