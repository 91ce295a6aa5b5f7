package zoom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/depobot/internal/apperrors"
)

// Webhook signature headers.
const (
	HeaderSignature = "x-zm-signature"
	HeaderTimestamp = "x-zm-request-timestamp"
)

// SignatureTolerance is the maximum clock distance accepted between the
// request timestamp and now.
const SignatureTolerance = 5 * time.Minute

// Sign computes the x-zm-signature value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the webhook signature headers against body.
// Errors match apperrors.ErrInvalidSignature.
func VerifySignature(secret string, header http.Header, body []byte, now time.Time) error {
	signature := header.Get(HeaderSignature)
	timestamp := header.Get(HeaderTimestamp)
	if signature == "" || timestamp == "" {
		return apperrors.InvalidSignature("missing signature headers")
	}

	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return apperrors.InvalidSignature("malformed request timestamp")
	}
	skew := now.Sub(time.Unix(sec, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > SignatureTolerance {
		return apperrors.InvalidSignature("request timestamp outside tolerance")
	}

	if !hmac.Equal([]byte(signature), []byte(Sign(secret, timestamp, body))) {
		return apperrors.InvalidSignature("signature mismatch")
	}
	return nil
}

// ValidationResponse answers an endpoint.url_validation challenge.
type ValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// Validate builds the challenge answer for plainToken.
func Validate(secret, plainToken string) ValidationResponse {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(plainToken))
	return ValidationResponse{
		PlainToken:     plainToken,
		EncryptedToken: hex.EncodeToString(mac.Sum(nil)),
	}
}
