package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// VerifySignature checks a "t=<unix>,v1=<hex>" header carrying an
// HMAC-SHA256 of "<t>.<payload>". Missing secret or header fails closed.
func VerifySignature(payload []byte, signatureHeader string, secret string, tolerance time.Duration, now time.Time) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	ts, candidates := parseSignatureHeader(signatureHeader)
	if ts == "" || len(candidates) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if tolerance > 0 {
		skew := now.Unix() - tsUnix
		limit := int64(tolerance / time.Second)
		if skew > limit || -skew > limit {
			return false
		}
	}

	expected := computeSignature(ts, payload, secret)
	for _, sig := range candidates {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

// SignPayload builds a signature header for payload at the given instant.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeSignature(ts, payload, secret))
}

func computeSignature(ts string, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (string, []string) {
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	return ts, v1
}
