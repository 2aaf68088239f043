// Package auth implements the HMAC-signed, bearer-gated boundary in front
// of the operator HTTP surface.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/brain/internal/config"
)

// ErrInvalidSignature is returned when the HMAC over the signed payload
// does not match the supplied signature.
var ErrInvalidSignature = fmt.Errorf("auth: invalid signature")

// ErrTimestampOutOfRange is returned when the request timestamp falls
// outside the configured tolerance window.
var ErrTimestampOutOfRange = fmt.Errorf("auth: timestamp outside tolerance window")

// ErrUnsupportedAlgorithm is returned for any HMAC algorithm other than
// sha256 or sha512.
var ErrUnsupportedAlgorithm = fmt.Errorf("auth: unsupported hmac algorithm")

// Signer verifies HMAC-signed requests from the execution bridge and other
// trusted writers, and issues signatures for outbound calls the Brain
// itself makes.
type Signer struct {
	secret    []byte
	algorithm string
	tolerance time.Duration
}

// NewSigner constructs a Signer from AuthConfig.
func NewSigner(cfg config.AuthConfig) *Signer {
	return &Signer{
		secret:    []byte(cfg.HMACSecret),
		algorithm: strings.ToLower(cfg.HMACAlgorithm),
		tolerance: cfg.TimestampTolerance,
	}
}

func (s *Signer) newHash() (func() hash.Hash, error) {
	switch s.algorithm {
	case "sha256":
		return sha256.New, nil
	case "sha512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s.algorithm)
	}
}

// Sign computes the hex-encoded HMAC over "timestamp.body".
func (s *Signer) Sign(timestamp int64, body []byte) (string, error) {
	newHash, err := s.newHash()
	if err != nil {
		return "", err
	}
	mac := hmac.New(newHash, s.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks that signature is the correct HMAC of timestamp+body and
// that timestamp falls within the configured tolerance of now. Signature
// comparison is constant-time to avoid a timing side channel on the
// operator-facing write endpoints.
func (s *Signer) Verify(timestamp int64, body []byte, signature string, now time.Time) error {
	age := now.Sub(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > s.tolerance {
		return ErrTimestampOutOfRange
	}

	expected, err := s.Sign(timestamp, body)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyBearer does a constant-time comparison against the configured
// static bearer token, used for the read-mostly dashboard/admin surface
// where request signing would be overkill.
func (s *Signer) VerifyBearer(token, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(configured)) == 1
}
