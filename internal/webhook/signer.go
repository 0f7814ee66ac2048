package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	SignatureHeader = "X-Cortap-Signature"
	TimestampHeader = "X-Cortap-Timestamp"

	signaturePrefix = "sha256="
)

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex encoded HMAC-SHA256 of "{ts}.{payload}".
func (s *Signer) Sign(ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header returns the signature header value.
func (s *Signer) Header(ts int64, payload []byte) string {
	return signaturePrefix + s.Sign(ts, payload)
}

// Verify accepts the signature with or without the "sha256=" prefix.
func (s *Signer) Verify(ts int64, payload []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(ts, payload))
	return hmac.Equal(got, want)
}
