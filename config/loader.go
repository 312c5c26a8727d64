package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	"go.yaml.in/yaml/v2"
)

// Format selects the encoding of a config file.
type Format int

const (
	FormatJSON Format = iota
	FormatTOML
	FormatYAML
	// FormatBinary is the compact CBOR form.
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extension returns the canonical file extension, with the dot.
func (f Format) Extension() string {
	if f == FormatBinary {
		return ".dat"
	}
	return "." + f.String()
}

// ParseFormat maps a format name or file extension (without the dot) to a
// Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "dat", "bin", "cbor", "binary":
		return FormatBinary, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

var (
	binEncMode cbor.EncMode
	binDecMode cbor.DecMode
)

func init() {
	var err error
	binEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("config: cbor enc mode: %v", err))
	}
	binDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("config: cbor dec mode: %v", err))
	}
}

// Load reads and decodes the config file at path. Failures are returned as
// *LoadError; the caller decides whether they are fatal.
func Load(path string, format Format) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Format: format, Err: err}
	}
	defer f.Close()

	n, err := Decode(f, format)
	if err != nil {
		return nil, &LoadError{Path: path, Format: format, Err: err}
	}
	return n, nil
}

// Decode reads one config record from r.
func Decode(r io.Reader, format Format) (*Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var fn fileNode
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &fn)
	case FormatTOML:
		err = toml.Unmarshal(data, &fn)
	case FormatYAML:
		err = yaml.Unmarshal(data, &fn)
	case FormatBinary:
		err = binDecMode.Unmarshal(data, &fn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s config: %w", format, err)
	}

	return fn.toNode()
}

// Encode writes n to w in the given format.
func Encode(w io.Writer, n *Node, format Format) error {
	fn := fromNode(n)

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(fn, "", "  ")
		data = append(data, '\n')
	case FormatTOML:
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(fn)
		data = buf.Bytes()
	case FormatYAML:
		data, err = yaml.Marshal(fn)
	case FormatBinary:
		data, err = binEncMode.Marshal(fn)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s config: %w", format, err)
	}

	_, err = w.Write(data)
	return err
}

// Save writes n to path, creating or truncating the file.
func Save(path string, n *Node, format Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, n, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
