package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"

	minPKCEVerifierLength = 43
	maxPKCEVerifierLength = 128
)

// PKCEParams is the optional Proof Key for Code Exchange extension (RFC 7636).
// It is orthogonal to the rest of the grant: a flow that never attaches PKCE
// params never reads or writes a verifier.
type PKCEParams struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE produces a fresh verifier/challenge pair using the S256 method.
func GeneratePKCE() (*PKCEParams, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, internalError(err, "core: generate pkce verifier")
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return PKCEFromVerifier(verifier)
}

// PKCEFromVerifier derives S256 challenge params from an existing verifier,
// e.g. one restored from a flow-state snapshot.
func PKCEFromVerifier(verifier string) (*PKCEParams, error) {
	if err := validatePKCEVerifier(verifier); err != nil {
		return nil, err
	}
	hash := sha256.Sum256([]byte(verifier))
	return &PKCEParams{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(hash[:]),
		Method:    PKCEMethodS256,
	}, nil
}

func validatePKCEVerifier(verifier string) error {
	if len(verifier) < minPKCEVerifierLength || len(verifier) > maxPKCEVerifierLength {
		return badInputError(fmt.Sprintf(
			"core: pkce verifier length must be between %d and %d characters",
			minPKCEVerifierLength, maxPKCEVerifierLength,
		))
	}
	for _, char := range verifier {
		if !isPKCEVerifierChar(char) {
			return badInputError("core: pkce verifier contains an invalid character")
		}
	}
	return nil
}

func isPKCEVerifierChar(char rune) bool {
	switch {
	case char >= 'A' && char <= 'Z':
		return true
	case char >= 'a' && char <= 'z':
		return true
	case char >= '0' && char <= '9':
		return true
	case char == '-' || char == '.' || char == '_' || char == '~':
		return true
	default:
		return false
	}
}
