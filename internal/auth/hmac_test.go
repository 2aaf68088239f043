package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brain/internal/config"
)

func testCfg(algo string) config.AuthConfig {
	return config.AuthConfig{
		HMACSecret:         "top-secret",
		HMACAlgorithm:      algo,
		TimestampTolerance: 300 * time.Second,
		BearerToken:        "operator-token",
	}
}

func TestSignAndVerifyRoundTripsSHA256(t *testing.T) {
	s := NewSigner(testCfg("sha256"))
	now := time.Now().UTC()
	body := []byte(`{"reason":"manual halt"}`)

	sig, err := s.Sign(now.Unix(), body)
	require.NoError(t, err)

	err = s.Verify(now.Unix(), body, sig, now)
	assert.NoError(t, err)
}

func TestSignAndVerifyRoundTripsSHA512(t *testing.T) {
	s := NewSigner(testCfg("sha512"))
	now := time.Now().UTC()
	body := []byte(`{"symbol":"BTCUSDT"}`)

	sig, err := s.Sign(now.Unix(), body)
	require.NoError(t, err)

	err = s.Verify(now.Unix(), body, sig, now)
	assert.NoError(t, err)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	s := NewSigner(testCfg("sha256"))
	now := time.Now().UTC()

	sig, err := s.Sign(now.Unix(), []byte("original"))
	require.NoError(t, err)

	err = s.Verify(now.Unix(), []byte("tampered"), sig, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	s := NewSigner(testCfg("sha256"))
	signedAt := time.Now().Add(-10 * time.Minute).UTC()
	body := []byte("payload")

	sig, err := s.Sign(signedAt.Unix(), body)
	require.NoError(t, err)

	err = s.Verify(signedAt.Unix(), body, sig, signedAt.Add(10*time.Minute))
	assert.ErrorIs(t, err, ErrTimestampOutOfRange)
}

func TestUnsupportedAlgorithmRejected(t *testing.T) {
	s := NewSigner(testCfg("md5"))
	_, err := s.Sign(time.Now().Unix(), []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestVerifyBearerConstantTimeMatch(t *testing.T) {
	s := NewSigner(testCfg("sha256"))
	assert.True(t, s.VerifyBearer("operator-token", "operator-token"))
	assert.False(t, s.VerifyBearer("wrong-token", "operator-token"))
	assert.False(t, s.VerifyBearer("anything", ""))
}
