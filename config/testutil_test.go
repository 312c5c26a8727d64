package config

import (
	"fmt"
	"testing"

	"github.com/VanDung-dev/HieraChain-Replica/crypto"
	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// testCluster returns a valid record for replica id of an n-node cluster
// with real keys for alg.
func testCluster(t *testing.T, alg crypto.Algorithm, n, f int, id types.Replica) *Node {
	t.Helper()

	node := NewNode()
	node.ID = id
	node.NumNodes = n
	node.NumFaults = f
	node.ClientPort = 10000
	node.BlockSize = 100
	node.Payload = 64
	node.CryptoAlg = alg
	node.SleepTime = SleepTimeFor(n)

	for i := 0; i < n; i++ {
		rid := types.Replica(i)
		node.NetMap[rid] = fmt.Sprintf("127.0.0.1:%d", 9000+i)
		pub, priv, err := crypto.GenerateKey(alg)
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		node.PKMap[rid] = pub
		if rid == id {
			node.SecretKey = priv
		}
	}
	return node
}
