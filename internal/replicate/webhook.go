package replicate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Webhook signature headers.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

// webhookTolerance is the maximum allowed clock skew for a signed callback.
const webhookTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("webhook: missing signature headers")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance")
)

// VerifyWebhook checks a callback signed with the account's webhook signing
// secret ("whsec_<base64>"). The signed content is "{id}.{timestamp}.{body}"
// and the signature header holds one or more space-separated "v1,<base64>"
// entries, any of which may match.
func VerifyWebhook(secret string, header http.Header, body []byte, now time.Time) error {
	id := header.Get(HeaderWebhookID)
	ts := header.Get(HeaderWebhookTimestamp)
	sigs := header.Get(HeaderWebhookSignature)
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingSignature
	}

	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if math.Abs(now.Sub(time.Unix(sec, 0)).Seconds()) > webhookTolerance.Seconds() {
		return ErrStaleTimestamp
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return err
	}
	expected := SignWebhook(key, id, ts, body)

	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignWebhook computes the raw HMAC-SHA256 signature for a callback.
func SignWebhook(key []byte, id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

func decodeSecret(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return key, nil
}
