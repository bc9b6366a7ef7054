package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet holds the Ed25519 public keys trusted for verification, keyed by
// kid. Holding retired keys alongside the active one lets already-issued
// tokens survive a key rotation.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]ed25519.PublicKey)}
}

// Add registers a public key under the given kid, replacing any previous one.
func (ks *KeySet) Add(kid string, pub ed25519.PublicKey) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[kid] = pub
}

// Get returns the public key for a kid.
func (ks *KeySet) Get(kid string) (ed25519.PublicKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	pub, ok := ks.keys[kid]
	if !ok {
		return nil, ErrUnknownKID
	}
	return pub, nil
}

// IsReady reports whether at least one key is loaded.
func (ks *KeySet) IsReady() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys) > 0
}

// Verifier validates JWTs signed with EdDSA against a KeySet.
type Verifier struct {
	Keys   *KeySet
	Issuer string
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}
		pub, err := v.Keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("jwtx: kid %q: %w", kid, err)
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("jwtx: invalid token claims")
	}

	if err := claims.ValidateIssuer(v.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return nil, err
	}

	return claims, nil
}
