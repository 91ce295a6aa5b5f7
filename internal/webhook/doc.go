// Package webhook receives Zoom meeting events and runs the recording
// pipeline they trigger.
//
// meeting.created sends a Recall bot to the meeting and records it in the
// bot registry. meeting.ended looks up the newest bot for the meeting and,
// once its transcript is available, runs:
//
//	claim -> lookup_bot -> retrieve_bot -> download -> persist_raw ->
//	format -> publish -> submit
//
// Each stage is logged, counted and traced. The first failing stage ends
// the run. The HTTP handler acknowledges events before processing them,
// so failures are only visible in logs, metrics and the audit trail.
package webhook
