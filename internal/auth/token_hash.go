package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var errRefreshTokenRequired = errors.New("refresh token required")

// HashRefreshToken returns the hex SHA-256 digest of a refresh token. Only
// digests are persisted; a leaked store never yields replayable tokens.
func HashRefreshToken(token string) (string, error) {
	if token == "" {
		return "", errRefreshTokenRequired
	}
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:]), nil
}
