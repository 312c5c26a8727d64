// Package arrow exports blocks as Apache Arrow record batches and moves
// them in the Arrow IPC stream format.
//
// One row holds one block: its header, its hash and the list of raw
// transaction payloads.
package arrow
