// Package publish uploads stored transcripts to the shared S3 bucket
// through short-lived presigned PUT URLs, so the upload itself carries no
// AWS credentials.
package publish
