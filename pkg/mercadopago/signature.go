package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Manifest builds the string MercadoPago signs for a webhook delivery.
// Parts with an empty value are left out.
func Manifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

// Sign returns the hex HMAC-SHA256 of manifest under secret.
func Sign(manifest, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseSignatureHeader splits an x-signature header ("ts=...,v1=...").
func ParseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	return ts, v1
}

// VerifySignature checks an x-signature header against the delivery's data
// id and x-request-id.
func VerifySignature(header, dataID, requestID, secret string) bool {
	ts, v1 := ParseSignatureHeader(header)
	if ts == "" || v1 == "" {
		return false
	}
	expected := Sign(Manifest(dataID, requestID, ts), secret)
	return hmac.Equal([]byte(v1), []byte(expected))
}
