package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	signatureHeader = "X-Webhook-Signature"
	timestampHeader = "X-Webhook-Timestamp"
)

// verifySignature authenticates a webhook request. The provider signs
// "<timestamp>.<body>" with HMAC-SHA256; the timestamp bounds replay
// of captured requests. The body is returned so the handler does not
// read it twice.
func verifySignature(r *http.Request, secretKey string, maxSkewSec int) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if os.Getenv("WADISPATCH_ENV") == "production" {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return nil, fmt.Errorf("missing signature header: %s", signatureHeader)
	}

	timestampStr := r.Header.Get(timestampHeader)
	if timestampStr == "" {
		return nil, fmt.Errorf("missing timestamp header: %s", timestampHeader)
	}
	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp header: %w", err)
	}
	skew := time.Since(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > time.Duration(maxSkewSec)*time.Second {
		return nil, fmt.Errorf("webhook timestamp outside allowed skew")
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(timestampStr))
	mac.Write([]byte("."))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return nil, fmt.Errorf("signature mismatch")
	}
	return body, nil
}
