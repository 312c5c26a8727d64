// Package crypto holds the signature schemes a replica may be configured
// with, their fixed key sizes, and the opaque threshold parameters handed to
// the consensus engine.
package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Key sizes in bytes, per algorithm.
const (
	Ed25519PublicKeySize    = ed25519.PublicKeySize
	Ed25519PrivateKeySize   = ed25519.PrivateKeySize
	Secp256k1PublicKeySize  = secp256k1.PubKeyBytesLenCompressed
	Secp256k1PrivateKeySize = secp256k1.PrivKeyBytesLen
)

// Common errors for algorithm handling
var (
	ErrUnknownAlgorithm       = errors.New("unknown crypto algorithm")
	ErrUnimplementedAlgorithm = errors.New("crypto algorithm not implemented")
)

// Algorithm selects the signature scheme in force for a cluster.
type Algorithm uint8

const (
	ED25519 Algorithm = iota
	SECP256K1
	// RSA is recognised so that configs naming it fail loudly; no key
	// handling exists for it.
	RSA
)

func (a Algorithm) String() string {
	switch a {
	case ED25519:
		return "ED25519"
	case SECP256K1:
		return "SECP256K1"
	case RSA:
		return "RSA"
	default:
		return fmt.Sprintf("Algorithm(%d)", uint8(a))
	}
}

// Implemented reports whether keys of this algorithm can be used.
func (a Algorithm) Implemented() bool {
	return a == ED25519 || a == SECP256K1
}

// PublicKeySize returns the fixed public key length for the algorithm.
func (a Algorithm) PublicKeySize() (int, error) {
	switch a {
	case ED25519:
		return Ed25519PublicKeySize, nil
	case SECP256K1:
		return Secp256k1PublicKeySize, nil
	case RSA:
		return 0, fmt.Errorf("%w: %s", ErrUnimplementedAlgorithm, a)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, a)
	}
}

// PrivateKeySize returns the fixed private key length for the algorithm.
func (a Algorithm) PrivateKeySize() (int, error) {
	switch a {
	case ED25519:
		return Ed25519PrivateKeySize, nil
	case SECP256K1:
		return Secp256k1PrivateKeySize, nil
	case RSA:
		return 0, fmt.Errorf("%w: %s", ErrUnimplementedAlgorithm, a)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, a)
	}
}

// ParseAlgorithm maps a configuration name onto an Algorithm. Names are
// case-insensitive. The RSA placeholder is rejected here, at construction
// time, with ErrUnimplementedAlgorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ED25519":
		return ED25519, nil
	case "SECP256K1":
		return SECP256K1, nil
	case "RSA":
		return RSA, fmt.Errorf("%w: RSA", ErrUnimplementedAlgorithm)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}
