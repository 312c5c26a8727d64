package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/crypto"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

var errTooFewNodes = errors.New("cluster needs at least one node")

// cluster describes the configs to generate.
type cluster struct {
	Nodes      int
	Faults     int
	Algorithm  crypto.Algorithm
	Hosts      []string
	BasePort   int
	ClientPort int
	BlockSize  int
	Payload    int
	Delta      time.Duration
	// Threshold is the beacon reconstruction threshold. Zero skips the
	// dealing.
	Threshold int
}

// addresses returns the replica address list: Hosts when given, otherwise
// consecutive loopback ports from BasePort.
func (c *cluster) addresses() ([]string, error) {
	if len(c.Hosts) > 0 {
		if len(c.Hosts) != c.Nodes {
			return nil, fmt.Errorf("address list has %d entries for %d nodes", len(c.Hosts), c.Nodes)
		}
		return c.Hosts, nil
	}
	out := make([]string, c.Nodes)
	for i := range out {
		out[i] = fmt.Sprintf("127.0.0.1:%d", c.BasePort+i)
	}
	return out, nil
}

// generate builds one validated record per replica.
func generate(c cluster) ([]*config.Node, error) {
	if c.Nodes <= 0 {
		return nil, errTooFewNodes
	}
	addrs, err := c.addresses()
	if err != nil {
		return nil, err
	}

	pubs := make(map[types.Replica][]byte, c.Nodes)
	privs := make([][]byte, c.Nodes)
	for i := 0; i < c.Nodes; i++ {
		pub, priv, err := crypto.GenerateKey(c.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key %d: %w", i, err)
		}
		pubs[types.Replica(i)] = pub
		privs[i] = priv
	}

	var dealing *crypto.Dealing
	publicShares := make(map[types.Replica][]byte, c.Nodes)
	if c.Threshold > 0 {
		dealing, err = crypto.Deal(c.Nodes, c.Threshold)
		if err != nil {
			return nil, err
		}
		for i, share := range dealing.Shares {
			ps, err := crypto.PublicShare(share)
			if err != nil {
				return nil, err
			}
			publicShares[types.Replica(i)] = ps
		}
	}

	nodes := make([]*config.Node, c.Nodes)
	for i := range nodes {
		n := config.NewNode()
		n.ID = types.Replica(i)
		n.NumNodes = c.Nodes
		n.NumFaults = c.Faults
		n.ClientPort = uint16(c.ClientPort + i)
		n.BlockSize = c.BlockSize
		n.Payload = c.Payload
		n.CryptoAlg = c.Algorithm
		n.SleepTime = config.SleepTimeFor(c.Nodes)
		if c.Delta > 0 {
			n.RoundTimeout = c.Delta
		}
		for id, addr := range addrs {
			n.NetMap[types.Replica(id)] = addr
		}
		for id, pub := range pubs {
			n.PKMap[id] = pub
		}
		n.SecretKey = privs[i]

		if dealing != nil {
			n.Threshold.Public = publicShares
			n.Threshold.Private = dealing.Shares[i]
			n.Threshold.Beacon = dealing.Commits[0]
			n.Threshold.History = []crypto.ShareBatch{{Commits: dealing.Commits}}
		}

		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("generated config %d: %w", i, err)
		}
		nodes[i] = n
	}
	return nodes, nil
}

// writeAll saves every record as node<i> in dir and returns the paths.
func writeAll(dir string, nodes []*config.Node, format config.Format) ([]string, error) {
	paths := make([]string, len(nodes))
	for i, n := range nodes {
		path := filepath.Join(dir, fmt.Sprintf("node%d%s", i, format.Extension()))
		if err := config.Save(path, n, format); err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}
