// Package server is the public HTTP surface of depobot.
//
// # Routes
//
//	POST /webhook                 Zoom meeting events (see package webhook)
//	GET  /api/recall/callback     fresh Zoom access token for a bot
//	GET  /install                 start the Zoom OAuth install
//	GET  /auth                    OAuth redirect target
//	GET  /auth/status             session login state
//	POST /api/scheduleDeposition  create a deposition meeting
//	GET  /healthz, /readyz        probes
//
// Prometheus metrics are served by MetricsServer on a separate listener.
//
// # Sessions
//
// Browser state lives in a signed and encrypted cookie (gorilla/sessions)
// named zoomapp.session that expires after 15 minutes. It holds the OAuth
// state and PKCE verifier during install, then the Zoom user id.
//
// # Security
//
//   - The token callback requires the shared Recall secret, compared in
//     constant time.
//   - Install, auth, callback and webhook routes are rate limited per IP.
//   - OAuth state is checked on the redirect and cleared after use.
package server
