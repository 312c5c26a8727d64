package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/crypto"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

func TestGenerate(t *testing.T) {
	c := cluster{
		Nodes:      4,
		Faults:     1,
		Algorithm:  crypto.SECP256K1,
		BasePort:   9000,
		ClientPort: 10000,
		BlockSize:  10,
		Delta:      80 * time.Millisecond,
		Threshold:  2,
	}
	nodes, err := generate(c)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(nodes) != 4 {
		t.Fatalf("Expected 4 configs, got %d", len(nodes))
	}

	for i, n := range nodes {
		if n.ID != types.Replica(i) || n.ClientPort != uint16(10000+i) {
			t.Errorf("node %d: id %d client port %d", i, n.ID, n.ClientPort)
		}
		if n.RoundTimeout != 80*time.Millisecond {
			t.Errorf("node %d: round timeout %v", i, n.RoundTimeout)
		}
		if n.NetMap[3] != "127.0.0.1:9003" {
			t.Errorf("node %d: unexpected net map %v", i, n.NetMap)
		}
		// Every replica sees the same key map, and its own secret key
		// signs for its own public key.
		if diff := cmp.Diff(nodes[0].PKMap, n.PKMap); diff != "" {
			t.Errorf("node %d: pk map differs (-want +got):\n%s", i, diff)
		}
		signer, err := crypto.NewSigner(n.CryptoAlg, n.SecretKey)
		if err != nil {
			t.Fatalf("NewSigner failed: %v", err)
		}
		sig, err := signer.Sign([]byte("msg"))
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		if !crypto.Verify(n.CryptoAlg, n.PKMap[n.ID], []byte("msg"), sig) {
			t.Errorf("node %d: secret key does not match its public key", i)
		}

		ok, err := crypto.CheckShare(n.Threshold.History[0].Commits, i, n.Threshold.Private)
		if err != nil || !ok {
			t.Errorf("node %d: beacon share does not verify (%v)", i, err)
		}
	}
}

func TestGenerateWithHosts(t *testing.T) {
	hosts := []string{"10.0.0.1:7000", "10.0.0.2:7000", "10.0.0.3:7000"}
	nodes, err := generate(cluster{Nodes: 3, Algorithm: crypto.ED25519, Hosts: hosts})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if nodes[1].NetMap[2] != "10.0.0.3:7000" {
		t.Errorf("unexpected net map %v", nodes[1].NetMap)
	}
	if !nodes[0].Threshold.Empty() {
		t.Error("threshold 0 should skip the beacon dealing")
	}

	if _, err := generate(cluster{Nodes: 4, Algorithm: crypto.ED25519, Hosts: hosts}); err == nil {
		t.Error("expected error for a short address list")
	}
}

func TestGenerateRejects(t *testing.T) {
	if _, err := generate(cluster{Nodes: 0}); !errors.Is(err, errTooFewNodes) {
		t.Errorf("expected errTooFewNodes, got %v", err)
	}
	_, err := generate(cluster{Nodes: 4, Faults: 2, Algorithm: crypto.ED25519})
	if !errors.Is(err, config.ErrIncorrectFaults) {
		t.Errorf("expected ErrIncorrectFaults, got %v", err)
	}
	if _, err := generate(cluster{Nodes: 4, Algorithm: crypto.ED25519, Threshold: 5}); !errors.Is(err, crypto.ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}
}

func TestWriteAllLoadsBack(t *testing.T) {
	nodes, err := generate(cluster{Nodes: 4, Faults: 1, Algorithm: crypto.ED25519, BasePort: 9000, Threshold: 2})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	for _, format := range []config.Format{config.FormatJSON, config.FormatTOML, config.FormatYAML, config.FormatBinary} {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			paths, err := writeAll(dir, nodes, format)
			if err != nil {
				t.Fatalf("writeAll failed: %v", err)
			}
			if want := filepath.Join(dir, "node2"+format.Extension()); paths[2] != want {
				t.Errorf("path = %s, want %s", paths[2], want)
			}
			if _, err := os.Stat(paths[3]); err != nil {
				t.Fatalf("config not written: %v", err)
			}

			loaded, err := config.Load(paths[2], format)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if err := loaded.Validate(); err != nil {
				t.Errorf("loaded config invalid: %v", err)
			}
			if diff := cmp.Diff(nodes[2].SecretKey, loaded.SecretKey); diff != "" {
				t.Errorf("secret key mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(nodes[2].Threshold, loaded.Threshold, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("threshold mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
