// Package deposition submits published transcripts to the deposition
// web application.
//
// Every request is authenticated with a six digit time-based one-time code
// sent in the x-totp-token header. The server rejects codes from a closed
// time window with 401, so those responses are retried with a fresh code;
// any other failure is returned immediately.
package deposition
