// Package engine defines what a consensus engine receives from the replica
// bootstrap and ships a development engine that runs on top of it.
//
// The bootstrap hands an engine a Handles value: the frozen configuration,
// the client mode flag and the four channel endpoints of the client fabric
// and the replica mesh. Engines never touch sockets.
//
// Sequencer is the development engine. It batches client transactions
// from a Mempool into chained blocks, proposes every block to its peers
// and returns it to clients. It performs no agreement.
package engine
