package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"go.dedis.ch/kyber/v4/share"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr error
	}{
		{"ED25519", ED25519, nil},
		{"ed25519", ED25519, nil},
		{"SECP256K1", SECP256K1, nil},
		{" secp256k1 ", SECP256K1, nil},
		{"RSA", RSA, ErrUnimplementedAlgorithm},
		{"DSA", 0, ErrUnknownAlgorithm},
		{"", 0, ErrUnknownAlgorithm},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseAlgorithm(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAlgorithm(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKeySizes(t *testing.T) {
	tests := []struct {
		alg       Algorithm
		pub, priv int
	}{
		{ED25519, 32, 64},
		{SECP256K1, 33, 32},
	}
	for _, tt := range tests {
		pub, err := tt.alg.PublicKeySize()
		if err != nil || pub != tt.pub {
			t.Errorf("%s public size = %d, %v; want %d", tt.alg, pub, err, tt.pub)
		}
		priv, err := tt.alg.PrivateKeySize()
		if err != nil || priv != tt.priv {
			t.Errorf("%s private size = %d, %v; want %d", tt.alg, priv, err, tt.priv)
		}
	}

	if _, err := RSA.PublicKeySize(); !errors.Is(err, ErrUnimplementedAlgorithm) {
		t.Errorf("RSA public size error = %v", err)
	}
}

func TestSignVerify(t *testing.T) {
	for _, alg := range []Algorithm{ED25519, SECP256K1} {
		t.Run(alg.String(), func(t *testing.T) {
			pub, priv, err := GenerateKey(alg)
			if err != nil {
				t.Fatalf("GenerateKey failed: %v", err)
			}
			wantPub, _ := alg.PublicKeySize()
			wantPriv, _ := alg.PrivateKeySize()
			if len(pub) != wantPub || len(priv) != wantPriv {
				t.Fatalf("key sizes = %d/%d, want %d/%d", len(pub), len(priv), wantPub, wantPriv)
			}

			signer, err := NewSigner(alg, priv)
			if err != nil {
				t.Fatalf("NewSigner failed: %v", err)
			}
			if !bytes.Equal(signer.Public(), pub) {
				t.Error("signer public key does not match generated key")
			}

			msg := []byte("block 42")
			sig, err := signer.Sign(msg)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}
			if !Verify(alg, pub, msg, sig) {
				t.Error("signature did not verify")
			}
			if Verify(alg, pub, []byte("block 43"), sig) {
				t.Error("signature verified for a different message")
			}
		})
	}
}

func TestNewSignerRejectsWrongSize(t *testing.T) {
	if _, err := NewSigner(ED25519, make([]byte, 32)); err == nil {
		t.Error("expected error for 32-byte ed25519 private key")
	}
	if _, err := NewSigner(RSA, nil); !errors.Is(err, ErrUnimplementedAlgorithm) {
		t.Errorf("NewSigner(RSA) error = %v", err)
	}
}

func TestHexBytesJSON(t *testing.T) {
	in := map[string]HexBytes{"k": {0xde, 0xad, 0xbe, 0xef}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"k":"deadbeef"}` {
		t.Errorf("got %s", data)
	}

	var out map[string]HexBytes
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !bytes.Equal(out["k"], in["k"]) {
		t.Errorf("round trip = %x, want %x", out["k"], in["k"])
	}

	var bad HexBytes
	if err := bad.UnmarshalText([]byte("zz")); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestDealAndCheckShare(t *testing.T) {
	const n, threshold = 4, 2
	d, err := Deal(n, threshold)
	if err != nil {
		t.Fatalf("Deal failed: %v", err)
	}
	if len(d.Commits) != threshold || len(d.Shares) != n {
		t.Fatalf("got %d commits, %d shares", len(d.Commits), len(d.Shares))
	}

	for i, s := range d.Shares {
		ok, err := CheckShare(d.Commits, i, s)
		if err != nil {
			t.Fatalf("CheckShare(%d) failed: %v", i, err)
		}
		if !ok {
			t.Errorf("share %d did not verify", i)
		}
	}

	// A share presented under another index must fail.
	ok, err := CheckShare(d.Commits, 1, d.Shares[0])
	if err != nil {
		t.Fatalf("CheckShare failed: %v", err)
	}
	if ok {
		t.Error("share 0 verified as share 1")
	}

	pub, err := PublicShare(d.Shares[0])
	if err != nil {
		t.Fatalf("PublicShare failed: %v", err)
	}
	if len(pub) != Ed25519PublicKeySize {
		t.Errorf("public share is %d bytes, want %d", len(pub), Ed25519PublicKeySize)
	}
	if _, err := PublicShare([]byte{1, 2, 3}); err == nil {
		t.Error("PublicShare accepted a short share")
	}
}

func TestDealSharesRecoverCommittedSecret(t *testing.T) {
	const n, threshold = 4, 3
	d, err := Deal(n, threshold)
	if err != nil {
		t.Fatalf("Deal failed: %v", err)
	}

	// Any threshold-sized subset recovers the secret behind Commits[0].
	shares := make([]*share.PriShare, 0, threshold)
	for _, i := range []int{3, 0, 2} {
		v := thresholdSuite.Scalar()
		if err := v.UnmarshalBinary(d.Shares[i]); err != nil {
			t.Fatalf("share %d: %v", i, err)
		}
		shares = append(shares, &share.PriShare{I: i, V: v})
	}
	secret, err := share.RecoverSecret(thresholdSuite, shares, threshold, n)
	if err != nil {
		t.Fatalf("RecoverSecret failed: %v", err)
	}
	got, err := thresholdSuite.Point().Mul(secret, nil).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, d.Commits[0]) {
		t.Error("recovered secret does not match the first commitment")
	}

	if _, err := CheckShare(d.Commits, -1, d.Shares[0]); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("negative index error = %v, want ErrInvalidThreshold", err)
	}
}

func TestDealRejectsBadThreshold(t *testing.T) {
	for _, tc := range [][2]int{{4, 0}, {4, 5}, {0, 0}} {
		if _, err := Deal(tc[0], tc[1]); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("Deal(%d, %d) error = %v", tc[0], tc[1], err)
		}
	}
}
