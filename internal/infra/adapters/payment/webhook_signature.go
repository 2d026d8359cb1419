package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/infra/metrics"
)

// SignatureVerifier checks HMAC-SHA256(timestamp + raw body) webhook signatures.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration, logger *zerolog.Logger) *SignatureVerifier {
	l := logger.With().Str("component", "webhook_signature").Logger()
	if tolerance <= 0 {
		tolerance = 300 * time.Second
	}
	v := &SignatureVerifier{secret: []byte(secret), tolerance: tolerance, log: &l, now: time.Now}
	if !v.Enabled() {
		l.Warn().Msg("webhook secret not configured; signature verification is DISABLED (development only)")
	}
	return v
}

func (v *SignatureVerifier) Enabled() bool { return len(v.secret) > 0 }

// Sign returns the lowercase hex signature for timestamp and body.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify returns domain.ErrInvalidSignature for any mismatch or a timestamp
// outside the tolerance window. The wrapped detail is for logs only.
func (v *SignatureVerifier) Verify(body []byte, timestamp, signature string) error {
	if !v.Enabled() {
		metrics.IncSignatureCheck("skipped")
		v.log.Warn().Msg("webhook signature check skipped: no secret")
		return nil
	}

	ts, err := parseTimestamp(timestamp)
	if err != nil {
		metrics.IncSignatureCheck("invalid")
		return fmt.Errorf("%w: bad timestamp", domain.ErrInvalidSignature)
	}
	if age := v.now().Sub(ts); age > v.tolerance || age < -v.tolerance {
		metrics.IncSignatureCheck("invalid")
		return fmt.Errorf("%w: timestamp outside tolerance (%s)", domain.ErrInvalidSignature, age.Round(time.Second))
	}

	expected := Sign(v.secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		metrics.IncSignatureCheck("invalid")
		return fmt.Errorf("%w: digest mismatch", domain.ErrInvalidSignature)
	}
	metrics.IncSignatureCheck("valid")
	return nil
}

// parseTimestamp accepts unix seconds or milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") {
		return time.Time{}, domain.ErrInvalidArgument
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	if n > 1e12 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}
