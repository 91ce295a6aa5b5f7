// Package httpclient builds the outbound HTTP clients used for Zoom, Recall,
// S3 and the deposition API.
//
// Every client carries a hard per-call timeout, propagates trace context
// through otelhttp, and reports each round trip as an upstream request
// metric labelled with the service name.
package httpclient
