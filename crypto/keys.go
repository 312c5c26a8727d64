package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer signs messages with a replica's private key.
type Signer interface {
	Algorithm() Algorithm
	Public() []byte
	Sign(msg []byte) ([]byte, error)
}

// GenerateKey creates a fresh key pair for the algorithm, returned in the
// byte layout the configuration stores.
func GenerateKey(alg Algorithm) (pub, priv []byte, err error) {
	switch alg {
	case ED25519:
		pk, sk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		return pk, sk, nil
	case SECP256K1:
		sk, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
		}
		return sk.PubKey().SerializeCompressed(), sk.Serialize(), nil
	default:
		_, err := alg.PrivateKeySize()
		return nil, nil, err
	}
}

// NewSigner builds a Signer from stored private key bytes.
func NewSigner(alg Algorithm, priv []byte) (Signer, error) {
	size, err := alg.PrivateKeySize()
	if err != nil {
		return nil, err
	}
	if len(priv) != size {
		return nil, fmt.Errorf("invalid %s private key size: expected %d, got %d", alg, size, len(priv))
	}

	switch alg {
	case ED25519:
		key := make(ed25519.PrivateKey, len(priv))
		copy(key, priv)
		return &ed25519Signer{key: key}, nil
	default:
		return &secp256k1Signer{key: secp256k1.PrivKeyFromBytes(priv)}, nil
	}
}

// Verify checks sig over msg against a stored public key.
func Verify(alg Algorithm, pub, msg, sig []byte) bool {
	switch alg {
	case ED25519:
		if len(pub) != Ed25519PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
	case SECP256K1:
		key, err := secp256k1.ParsePubKey(pub)
		if err != nil {
			return false
		}
		parsed, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}
		digest := sha256.Sum256(msg)
		return parsed.Verify(digest[:], key)
	default:
		return false
	}
}

type ed25519Signer struct {
	key ed25519.PrivateKey
}

func (s *ed25519Signer) Algorithm() Algorithm { return ED25519 }

func (s *ed25519Signer) Public() []byte {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.key, msg), nil
}

type secp256k1Signer struct {
	key *secp256k1.PrivateKey
}

func (s *secp256k1Signer) Algorithm() Algorithm { return SECP256K1 }

func (s *secp256k1Signer) Public() []byte {
	return s.key.PubKey().SerializeCompressed()
}

// Sign produces a DER-encoded ECDSA signature over SHA-256(msg).
func (s *secp256k1Signer) Sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	return ecdsa.Sign(s.key, digest[:]).Serialize(), nil
}
