// Package types defines the payloads carried on the replica wire.
// This package implements:
// - Replica identifiers
// - Client transactions and committed blocks
// - Internal protocol-control messages exchanged between replicas
package types
