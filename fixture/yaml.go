package fixture

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xycloo/zephyr-go/codec"
)

// File is the YAML form of a fixture:
//
//	name: token
//	genesis:
//	  sequence: 1
//	  timestamp: 1700000000
//	  entries:
//	    - key: balance
//	      u64: 100
//	transitions:
//	  - invocation: 1
//	    timestamp: 1700000005
//	    ops:
//	      - key: balance
//	        u64: 90
//	      - key: owner
//	        delete: true
type File struct {
	Name        string           `yaml:"name"`
	Genesis     GenesisFile      `yaml:"genesis"`
	Transitions []TransitionFile `yaml:"transitions"`
}

type GenesisFile struct {
	Sequence  uint64      `yaml:"sequence"`
	Timestamp int64       `yaml:"timestamp"`
	Entries   []EntryFile `yaml:"entries"`
}

type TransitionFile struct {
	Invocation uint64      `yaml:"invocation"`
	Timestamp  int64       `yaml:"timestamp"`
	Ops        []EntryFile `yaml:"ops"`
}

// EntryFile names a key and exactly one value form, or delete.
type EntryFile struct {
	Key    string  `yaml:"key"`
	KeyHex string  `yaml:"key_hex,omitempty"`
	Raw    *string `yaml:"raw,omitempty"`
	String *string `yaml:"string,omitempty"`
	U64    *uint64 `yaml:"u64,omitempty"`
	I64    *int64  `yaml:"i64,omitempty"`
	U32    *uint32 `yaml:"u32,omitempty"`
	Bool   *bool   `yaml:"bool,omitempty"`
	Delete bool    `yaml:"delete,omitempty"`
}

func (e EntryFile) key() ([]byte, error) {
	if e.KeyHex != "" {
		if e.Key != "" {
			return nil, fmt.Errorf("entry sets both key and key_hex")
		}
		b, err := hex.DecodeString(e.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid key_hex %q: %w", e.KeyHex, err)
		}
		return b, nil
	}
	return []byte(e.Key), nil
}

// value returns the encoded value; a nil value with no error is a delete.
func (e EntryFile) value() ([]byte, error) {
	var (
		out   []byte
		forms int
	)
	if e.Raw != nil {
		b, err := hex.DecodeString(*e.Raw)
		if err != nil {
			return nil, fmt.Errorf("invalid raw value: %w", err)
		}
		out, forms = b, forms+1
	}
	if e.String != nil {
		out, forms = codec.Marshal(codec.String(*e.String)), forms+1
	}
	if e.U64 != nil {
		out, forms = codec.Marshal(codec.U64(*e.U64)), forms+1
	}
	if e.I64 != nil {
		out, forms = codec.Marshal(codec.I64(*e.I64)), forms+1
	}
	if e.U32 != nil {
		out, forms = codec.Marshal(codec.U32(*e.U32)), forms+1
	}
	if e.Bool != nil {
		out, forms = codec.Marshal(codec.Bool(*e.Bool)), forms+1
	}

	switch {
	case e.Delete && forms > 0:
		return nil, fmt.Errorf("entry %q deletes and sets a value", e.Key)
	case e.Delete:
		return nil, nil
	case forms != 1:
		return nil, fmt.Errorf("entry %q needs exactly one value, got %d", e.Key, forms)
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// LoadYAML reads a fixture file and builds its chain.
func LoadYAML(r io.Reader) (*Fixture, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return f.Build()
}

// LoadYAMLFile is LoadYAML on the file at path.
func LoadYAMLFile(path string) (*Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer fh.Close()
	return LoadYAML(fh)
}

// Build converts the parsed file into a fixture.
func (f File) Build() (*Fixture, error) {
	gb := New(f.Name).At(f.Genesis.Sequence, f.Genesis.Timestamp)
	for i, e := range f.Genesis.Entries {
		key, err := e.key()
		if err != nil {
			return nil, fmt.Errorf("genesis entry %d: %w", i, err)
		}
		value, err := e.value()
		if err != nil {
			return nil, fmt.Errorf("genesis entry %d: %w", i, err)
		}
		if value == nil {
			gb.Delete(key)
			continue
		}
		gb.SetRaw(key, value)
	}
	genesis, err := gb.Snapshot()
	if err != nil {
		return nil, err
	}

	chain := NewChain(f.Name, genesis)
	for i, t := range f.Transitions {
		step := chain.Step(t.Invocation, t.Timestamp)
		for j, e := range t.Ops {
			key, err := e.key()
			if err != nil {
				return nil, fmt.Errorf("transition %d op %d: %w", i, j, err)
			}
			value, err := e.value()
			if err != nil {
				return nil, fmt.Errorf("transition %d op %d: %w", i, j, err)
			}
			if value == nil {
				step.Delete(key)
			} else {
				step.SetRaw(key, value)
			}
		}
	}
	return chain.Build()
}
