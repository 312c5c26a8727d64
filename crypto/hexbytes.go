package crypto

import (
	"encoding/hex"
	"fmt"
)

// HexBytes is a byte string that renders as hex in text encodings
// (JSON, TOML, YAML). Binary encodings that ignore TextMarshaler keep it as
// a raw byte string.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(out, h)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	out := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(out, text)
	if err != nil {
		return fmt.Errorf("invalid hex string: %w", err)
	}
	*h = out[:n]
	return nil
}

// MarshalYAML renders the bytes as a hex scalar.
func (h HexBytes) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// UnmarshalYAML reads a hex scalar.
func (h *HexBytes) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return h.UnmarshalText([]byte(s))
}
