package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/codec"
	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/crypto"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envConfig, envDelta, envAddrFile, envMetricsAddr, envAdminAddr, envFeedAddr, envLogFile} {
		t.Setenv(k, "")
	}
}

func TestParseFlags(t *testing.T) {
	clearEnv(t)

	o, err := parseFlags([]string{
		"-config", "node0.toml", "-delta", "20", "-ip", "ips.txt", "-s", "-v", "-v",
		"-metrics", ":9100", "-feed", "tcp://*:7000",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	if o.ConfigPath != "node0.toml" || o.AddrFile != "ips.txt" || !o.ClientMode {
		t.Errorf("unexpected options %+v", o)
	}
	if !o.Delta.set || o.Delta.d != 20*time.Millisecond {
		t.Errorf("delta = %+v, want 20ms set", o.Delta)
	}
	if o.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", o.Verbosity)
	}
	if o.MetricsAddr != ":9100" || o.FeedAddr != "tcp://*:7000" || o.AdminAddr != "" {
		t.Errorf("unexpected surfaces %+v", o)
	}
}

func TestParseFlagsEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(envConfig, "from-env.json")
	t.Setenv(envDelta, "75")

	o, err := parseFlags([]string{"-v=3"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if o.ConfigPath != "from-env.json" {
		t.Errorf("config = %q, want env default", o.ConfigPath)
	}
	if !o.Delta.set || o.Delta.d != 75*time.Millisecond {
		t.Errorf("delta = %+v, want 75ms set", o.Delta)
	}
	if o.Verbosity != 3 {
		t.Errorf("verbosity = %d, want 3", o.Verbosity)
	}

	// Flags win over the environment.
	o, err = parseFlags([]string{"-config", "flag.yaml", "-delta", "0"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if o.ConfigPath != "flag.yaml" || o.Delta.d != 0 || !o.Delta.set {
		t.Errorf("unexpected options %+v", o)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	clearEnv(t)

	if _, err := parseFlags(nil, io.Discard); !errors.Is(err, errNoConfig) {
		t.Errorf("expected errNoConfig, got %v", err)
	}
	if _, err := parseFlags([]string{"-config", "a.json", "-delta", "soon"}, io.Discard); err == nil {
		t.Error("expected error for non-numeric delta")
	}
	if _, err := parseFlags([]string{"-config", "a.json", "-v=-1"}, io.Discard); err == nil {
		t.Error("expected error for negative verbosity")
	}
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path    string
		want    config.Format
		wantErr bool
	}{
		{"node.json", config.FormatJSON, false},
		{"dir.v2/node.toml", config.FormatTOML, false},
		{"node.yml", config.FormatYAML, false},
		{"node.dat", config.FormatBinary, false},
		{"node", 0, true},
		{"node.ini", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := formatFor(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("formatFor failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
		})
	}
}

// writeCluster saves a valid config for replica id of an n-node cluster
// and returns its path.
func writeCluster(t *testing.T, n int, id types.Replica, name string, edit func(*config.Node)) string {
	t.Helper()

	node := config.NewNode()
	node.ID = id
	node.NumNodes = n
	node.NumFaults = (n - 1) / 3
	node.BlockSize = 1
	node.Payload = 16
	node.CryptoAlg = crypto.ED25519
	for i := 0; i < n; i++ {
		pub, priv, err := crypto.GenerateKey(crypto.ED25519)
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		node.NetMap[types.Replica(i)] = "127.0.0.1:0"
		node.PKMap[types.Replica(i)] = pub
		if types.Replica(i) == id {
			node.SecretKey = priv
		}
	}
	if edit != nil {
		edit(node)
	}

	path := filepath.Join(t.TempDir(), name)
	format, err := formatFor(path)
	if err != nil {
		t.Fatalf("formatFor failed: %v", err)
	}
	if err := config.Save(path, node, format); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return path
}

func TestPrepareConfig(t *testing.T) {
	path := writeCluster(t, 4, 2, "node2.toml", nil)

	ips := filepath.Join(t.TempDir(), "ips.txt")
	hosts := "10.0.0.1:9000\n10.0.0.2:9000\n10.0.0.3:9000\n10.0.0.4:9000\n"
	if err := os.WriteFile(ips, []byte(hosts), 0o600); err != nil {
		t.Fatal(err)
	}

	o := options{ConfigPath: path, AddrFile: ips}
	if err := o.Delta.Set("120"); err != nil {
		t.Fatal(err)
	}

	node, err := prepareConfig(o)
	if err != nil {
		t.Fatalf("prepareConfig failed: %v", err)
	}
	if !node.Frozen() {
		t.Error("config should be frozen")
	}
	if node.RoundTimeout != 120*time.Millisecond {
		t.Errorf("round timeout = %v, want 120ms", node.RoundTimeout)
	}
	if node.NetMap[2] != "0.0.0.0:9000" || node.NetMap[3] != "10.0.0.4:9000" {
		t.Errorf("addresses not patched: %v", node.NetMap)
	}
}

func TestPrepareConfigRejects(t *testing.T) {
	bad := writeCluster(t, 4, 0, "node0.json", func(n *config.Node) {
		n.NumFaults = 2
	})
	_, err := prepareConfig(options{ConfigPath: bad})
	var verr *config.ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, config.ErrIncorrectFaults) {
		t.Errorf("expected incorrect faults validation error, got %v", err)
	}

	if _, err := prepareConfig(options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected load error for a missing file")
	}

	short := writeCluster(t, 4, 0, "node0.yaml", nil)
	ips := filepath.Join(t.TempDir(), "ips.txt")
	if err := os.WriteFile(ips, []byte("10.0.0.1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := prepareConfig(options{ConfigPath: short, AddrFile: ips}); !errors.Is(err, config.ErrMalformedAddress) {
		t.Errorf("expected ErrMalformedAddress, got %v", err)
	}
}

func TestReplicaServesClients(t *testing.T) {
	path := writeCluster(t, 1, 0, "solo.dat", nil)
	cfg, err := prepareConfig(options{ConfigPath: path})
	if err != nil {
		t.Fatalf("prepareConfig failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := options{MetricsAddr: "127.0.0.1:0", AdminAddr: "127.0.0.1:0"}
	r, err := startReplica(ctx, cfg, o, zap.NewNop())
	if err != nil {
		t.Fatalf("startReplica failed: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.run() }()

	port := r.clients.Addr().(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dial client fabric failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := codec.NewTxCodec().Encode(conn, &types.Transaction{Data: []byte("hello")}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	block, err := codec.NewReader(conn, codec.NewBlockCodec()).Next()
	if err != nil {
		t.Fatalf("reading block failed: %v", err)
	}
	if block.Header.Height != 1 || block.NumTxs() != 1 || string(block.Body[0].Data) != "hello" {
		t.Errorf("unexpected block %+v", block)
	}

	// The counter is bumped right after delivery, so poll briefly.
	metricsURL := "http://" + r.metricsLis.Addr().String() + "/metrics"
	deadline := time.Now().Add(5 * time.Second)
	for {
		if strings.Contains(scrape(t, metricsURL), "hierachain_blocks_committed_total 1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("metrics never reported the committed block")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("replica did not stop")
	}
}

func TestStartReplicaBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	path := writeCluster(t, 1, 0, "solo.json", nil)
	cfg, err := prepareConfig(options{ConfigPath: path})
	if err != nil {
		t.Fatalf("prepareConfig failed: %v", err)
	}

	_, err = startReplica(context.Background(), cfg, options{MetricsAddr: busy.Addr().String()}, zap.NewNop())
	if err == nil {
		t.Fatal("expected bind failure")
	}
}

func TestStartReplicaOwnAddressMissing(t *testing.T) {
	cfg := config.NewNode()
	cfg.ID = 3
	cfg.NumNodes = 1
	cfg.NetMap[0] = "127.0.0.1:0"
	cfg.Freeze()

	_, err := startReplica(context.Background(), cfg, options{}, zap.NewNop())
	if !errors.Is(err, config.ErrOwnAddressMissing) {
		t.Errorf("error = %v, want ErrOwnAddressMissing", err)
	}
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading metrics failed: %v", err)
	}
	return string(body)
}
