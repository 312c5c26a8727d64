package config

import (
	"sort"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// Validate checks the record and returns the first failing check as a
// *ValidationError. Checks run in this order:
//
//  1. the network map has exactly NumNodes entries
//  2. 2*NumFaults < NumNodes
//  3. every network map key is below NumNodes
//  4. every public key map key is below NumNodes
//  5. the algorithm is implemented
//  6. every public key has the algorithm's size
//  7. the secret key has the algorithm's size
//
// Validate never mutates the record.
func (n *Node) Validate() error {
	if len(n.NetMap) != n.NumNodes {
		return &ValidationError{Err: ErrInvalidMapLen, Expected: n.NumNodes, Actual: len(n.NetMap)}
	}
	if 2*n.NumFaults >= n.NumNodes {
		return &ValidationError{Err: ErrIncorrectFaults, Expected: n.NumNodes, Actual: n.NumFaults}
	}
	for _, id := range sortedIDs(n.NetMap) {
		if !validReplica(id, n.NumNodes) {
			return &ValidationError{Err: ErrInvalidMapEntry, Replica: id, Map: "net_map"}
		}
	}
	pkIDs := sortedIDs(n.PKMap)
	for _, id := range pkIDs {
		if !validReplica(id, n.NumNodes) {
			return &ValidationError{Err: ErrInvalidMapEntry, Replica: id, Map: "pk_map"}
		}
	}

	if !n.CryptoAlg.Implemented() {
		return &ValidationError{Err: ErrUnimplemented}
	}
	pkSize, err := n.CryptoAlg.PublicKeySize()
	if err != nil {
		return &ValidationError{Err: ErrUnimplemented}
	}
	skSize, err := n.CryptoAlg.PrivateKeySize()
	if err != nil {
		return &ValidationError{Err: ErrUnimplemented}
	}

	for _, id := range pkIDs {
		if got := len(n.PKMap[id]); got != pkSize {
			return &ValidationError{Err: ErrInvalidPKSize, Replica: id, Expected: pkSize, Actual: got}
		}
	}
	if len(n.SecretKey) != skSize {
		return &ValidationError{Err: ErrInvalidSKSize, Expected: skSize, Actual: len(n.SecretKey)}
	}
	return nil
}

func validReplica(id types.Replica, numNodes int) bool {
	return int(id) < numNodes
}

func sortedIDs[V any](m map[types.Replica]V) []types.Replica {
	ids := make([]types.Replica, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
