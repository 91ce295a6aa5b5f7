// Package zoom is the client for the Zoom OAuth endpoints and REST API,
// plus the helpers that authenticate inbound Zoom webhooks.
//
// OAuth runs through golang.org/x/oauth2 with PKCE (S256). REST calls use
// the API host derived from the configured Zoom host (https://zoom.us gives
// https://api.zoom.us/v2). Non-2xx answers surface as
// *apperrors.UpstreamError with Service "zoom" and are never retried.
package zoom
