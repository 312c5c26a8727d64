package config

import (
	"errors"
	"fmt"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// Validation failures, in check order.
var (
	ErrInvalidMapLen   = errors.New("network map size does not match number of nodes")
	ErrIncorrectFaults = errors.New("too many faults for number of nodes")
	ErrInvalidMapEntry = errors.New("replica id out of range")
	ErrInvalidPKSize   = errors.New("invalid public key size")
	ErrInvalidSKSize   = errors.New("invalid secret key size")
	ErrUnimplemented   = errors.New("unimplemented crypto algorithm")
)

// Loader and patching errors.
var (
	ErrUnknownFormat     = errors.New("unknown config format")
	ErrMalformedAddress  = errors.New("malformed address")
	ErrOwnAddressMissing = errors.New("own id missing from network map")
	ErrFrozen            = errors.New("config is frozen")
)

// ValidationError describes the first check a Node failed. Fields that do
// not apply to the failed check are zero.
type ValidationError struct {
	Err      error
	Replica  types.Replica
	Expected int
	Actual   int
	Map      string
}

func (e *ValidationError) Error() string {
	switch e.Err {
	case ErrInvalidMapLen:
		return fmt.Sprintf("%v: expected %d, got %d", e.Err, e.Expected, e.Actual)
	case ErrIncorrectFaults:
		return fmt.Sprintf("%v: %d faults with %d nodes", e.Err, e.Actual, e.Expected)
	case ErrInvalidMapEntry:
		return fmt.Sprintf("%v: replica %d in %s", e.Err, e.Replica, e.Map)
	case ErrInvalidPKSize:
		return fmt.Sprintf("%v for replica %d: expected %d, got %d", e.Err, e.Replica, e.Expected, e.Actual)
	case ErrInvalidSKSize:
		return fmt.Sprintf("%v: expected %d, got %d", e.Err, e.Expected, e.Actual)
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// LoadError reports a config file that could not be opened or decoded.
type LoadError struct {
	Path   string
	Format Format
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s config %q: %v", e.Format, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
