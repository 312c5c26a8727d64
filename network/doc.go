// Package network opens the two transport fabrics of a replica.
//
// The client fabric accepts any number of client connections. Each
// connection sends framed transactions, which fan in to one ingress
// channel, and receives framed blocks addressed to it by ClientID (or to
// every client at once).
//
// The replica mesh connects this replica to every other replica in the
// network map. Both ends listen and dial; a hello frame identifies each
// connection and, when a pair ends up with two connections, both ends keep
// the one initiated by the lower replica id. Unreachable peers are retried
// with unbounded exponential backoff, and a peer that drops is redialled.
// Outbound messages wait in a bounded per-peer queue that survives
// reconnects.
//
// Neither fabric interprets payloads. They only move typed frames between
// sockets and channels.
package network
