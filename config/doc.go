// Package config provides the replica configuration record and everything
// that touches it before the transports start.
//
// A Node is built by the loader from exactly one serialized source (JSON,
// TOML, YAML or the compact CBOR binary form), optionally patched with a
// host list and a round timeout override, validated, and then frozen.
// After Freeze the record is shared read-only by the network fabrics and
// the engine.
//
// Validation is fail-fast and runs its checks in a fixed order, so the
// error returned for a record with several defects is deterministic:
//
//	if err := node.Validate(); err != nil {
//	    var verr *config.ValidationError
//	    if errors.As(err, &verr) { ... }
//	}
package config
