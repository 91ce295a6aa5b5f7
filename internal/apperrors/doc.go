// Package apperrors defines the error taxonomy shared by every depobot component.
//
// Four categories exist:
//
//   - ErrInvalidArgument: malformed caller input (HTTP 400)
//   - Unauthorized: authentication failures, split by Reason into
//     NoCredential, ReauthRequired and InvalidSignature (HTTP 401)
//   - UpstreamError: an external dependency failed or answered non-2xx (HTTP 502)
//   - RetryExhausted: a bounded retry loop gave up (HTTP 502)
//
// Classify with errors.Is / errors.As or the Is* helpers:
//
//	if apperrors.IsReauthRequired(err) {
//	    // prompt the user instead of retrying
//	}
package apperrors
