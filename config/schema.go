package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/VanDung-dev/HieraChain-Replica/crypto"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// fileNode is the on-disk layout shared by every encoding. Map keys are
// strings because TOML and YAML cannot carry integer keys portably; binary
// payloads keep the json tag names.
type fileNode struct {
	NetMap map[string]string `json:"net_map" toml:"net_map" yaml:"net_map"`

	Delta      *uint64 `json:"delta,omitempty" toml:"delta,omitempty" yaml:"delta,omitempty"`
	ID         uint16  `json:"id" toml:"id" yaml:"id"`
	NumNodes   int     `json:"num_nodes" toml:"num_nodes" yaml:"num_nodes"`
	NumFaults  int     `json:"num_faults" toml:"num_faults" yaml:"num_faults"`
	BlockSize  int     `json:"block_size" toml:"block_size" yaml:"block_size"`
	ClientPort uint16  `json:"client_port" toml:"client_port" yaml:"client_port"`
	Payload    int     `json:"payload" toml:"payload" yaml:"payload"`

	CryptoAlg string                     `json:"crypto_alg" toml:"crypto_alg" yaml:"crypto_alg"`
	PKMap     map[string]crypto.HexBytes `json:"pk_map" toml:"pk_map" yaml:"pk_map"`
	SecretKey crypto.HexBytes            `json:"secret_key_bytes" toml:"secret_key_bytes" yaml:"secret_key_bytes"`

	BiPPMap             map[string]crypto.HexBytes   `json:"bi_pp_map,omitempty" toml:"bi_pp_map,omitempty" yaml:"bi_pp_map,omitempty"`
	BiP                 crypto.HexBytes              `json:"bi_p,omitempty" toml:"bi_p,omitempty" yaml:"bi_p,omitempty"`
	RandBeaconParameter crypto.HexBytes              `json:"rand_beacon_parameter,omitempty" toml:"rand_beacon_parameter,omitempty" yaml:"rand_beacon_parameter,omitempty"`
	RandBeaconQueue     map[string][]crypto.HexBytes `json:"rand_beacon_queue,omitempty" toml:"rand_beacon_queue,omitempty" yaml:"rand_beacon_queue,omitempty"`
	RandBeaconShares    []fileShareBatch             `json:"rand_beacon_shares,omitempty" toml:"rand_beacon_shares,omitempty" yaml:"rand_beacon_shares,omitempty"`
}

type fileShareBatch struct {
	Shares  [][]crypto.HexBytes `json:"shares" toml:"shares" yaml:"shares"`
	Commits []crypto.HexBytes   `json:"commits" toml:"commits" yaml:"commits"`
}

func parseReplica(key string) (types.Replica, error) {
	v, err := strconv.ParseUint(key, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid replica id %q: %w", key, err)
	}
	return types.Replica(v), nil
}

func replicaKey(id types.Replica) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (f *fileNode) toNode() (*Node, error) {
	alg, err := crypto.ParseAlgorithm(f.CryptoAlg)
	if err != nil {
		return nil, err
	}

	n := NewNode()
	n.ID = types.Replica(f.ID)
	n.NumNodes = f.NumNodes
	n.NumFaults = f.NumFaults
	n.ClientPort = f.ClientPort
	n.BlockSize = f.BlockSize
	n.Payload = f.Payload
	n.CryptoAlg = alg
	n.SleepTime = SleepTimeFor(f.NumNodes)
	if f.Delta != nil {
		n.RoundTimeout = msToDuration(*f.Delta)
	}
	if len(f.SecretKey) > 0 {
		n.SecretKey = []byte(f.SecretKey)
	}

	for k, addr := range f.NetMap {
		id, err := parseReplica(k)
		if err != nil {
			return nil, fmt.Errorf("net_map: %w", err)
		}
		n.NetMap[id] = addr
	}
	for k, pk := range f.PKMap {
		id, err := parseReplica(k)
		if err != nil {
			return nil, fmt.Errorf("pk_map: %w", err)
		}
		n.PKMap[id] = []byte(pk)
	}

	th := &n.Threshold
	if len(f.BiPPMap) > 0 {
		th.Public = make(map[types.Replica][]byte, len(f.BiPPMap))
		for k, v := range f.BiPPMap {
			id, err := parseReplica(k)
			if err != nil {
				return nil, fmt.Errorf("bi_pp_map: %w", err)
			}
			th.Public[id] = []byte(v)
		}
	}
	if len(f.BiP) > 0 {
		th.Private = []byte(f.BiP)
	}
	if len(f.RandBeaconParameter) > 0 {
		th.Beacon = []byte(f.RandBeaconParameter)
	}
	if len(f.RandBeaconQueue) > 0 {
		th.Queue = make(map[types.Replica][][]byte, len(f.RandBeaconQueue))
		for k, v := range f.RandBeaconQueue {
			id, err := parseReplica(k)
			if err != nil {
				return nil, fmt.Errorf("rand_beacon_queue: %w", err)
			}
			th.Queue[id] = fromHexList(v)
		}
	}
	for _, b := range f.RandBeaconShares {
		batch := crypto.ShareBatch{Commits: fromHexList(b.Commits)}
		for _, s := range b.Shares {
			batch.Shares = append(batch.Shares, fromHexList(s))
		}
		th.History = append(th.History, batch)
	}

	return n, nil
}

func fromNode(n *Node) *fileNode {
	delta := uint64(n.RoundTimeout / time.Millisecond)
	f := &fileNode{
		NetMap:     make(map[string]string, len(n.NetMap)),
		Delta:      &delta,
		ID:         uint16(n.ID),
		NumNodes:   n.NumNodes,
		NumFaults:  n.NumFaults,
		BlockSize:  n.BlockSize,
		ClientPort: n.ClientPort,
		Payload:    n.Payload,
		CryptoAlg:  n.CryptoAlg.String(),
		PKMap:      make(map[string]crypto.HexBytes, len(n.PKMap)),
		SecretKey:  n.SecretKey,
	}
	for id, addr := range n.NetMap {
		f.NetMap[replicaKey(id)] = addr
	}
	for id, pk := range n.PKMap {
		f.PKMap[replicaKey(id)] = pk
	}

	th := &n.Threshold
	if len(th.Public) > 0 {
		f.BiPPMap = make(map[string]crypto.HexBytes, len(th.Public))
		for id, v := range th.Public {
			f.BiPPMap[replicaKey(id)] = v
		}
	}
	f.BiP = th.Private
	f.RandBeaconParameter = th.Beacon
	if len(th.Queue) > 0 {
		f.RandBeaconQueue = make(map[string][]crypto.HexBytes, len(th.Queue))
		for id, v := range th.Queue {
			f.RandBeaconQueue[replicaKey(id)] = toHexList(v)
		}
	}
	for _, b := range th.History {
		fb := fileShareBatch{Commits: toHexList(b.Commits)}
		for _, s := range b.Shares {
			fb.Shares = append(fb.Shares, toHexList(s))
		}
		f.RandBeaconShares = append(f.RandBeaconShares, fb)
	}
	return f
}

func fromHexList(in []crypto.HexBytes) [][]byte {
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = []byte(b)
	}
	return out
}

func toHexList(in [][]byte) []crypto.HexBytes {
	out := make([]crypto.HexBytes, len(in))
	for i, b := range in {
		out[i] = b
	}
	return out
}

func msToDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
