// Package transcript downloads Recall meeting transcripts, stores the raw
// and formatted copies under the data directory, and renders them as
// paginated, line-numbered legal transcripts.
//
// A rendered page looks like:
//
//	    Page 1
//	0:00:01  1 Q:   Please state your name
//	0:00:04  2 A:   Jane Doe
//
// The host's words are marked Q and everyone else's A. Line numbers run
// across pages.
package transcript
