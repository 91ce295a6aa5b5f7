// Package recall is the client for the Recall.ai bot API: creating
// recording bots for meetings, reading them back once the meeting ended,
// and registering the Zoom OAuth credential callback that lets bots join
// as the authorized user.
package recall
