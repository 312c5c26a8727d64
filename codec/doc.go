// Package codec frames typed messages on a byte stream.
//
// Every message travels as
//
//	[4 bytes length (BigEndian)] [N bytes CBOR payload]
//
// where the length counts payload bytes only. Payloads use CBOR Core
// Deterministic Encoding, so equal values always produce equal frames.
//
// A Codec carries no per-stream state and may be shared by any number of
// connections. Per-connection buffering lives in Reader.
package codec
