package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xycloo/zephyr-go/types"
)

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// parseKey reads a key argument as text, or as hex with --hex.
func parseKey(arg string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(arg), nil
	}
	key, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key %q: %w", arg, err)
	}
	return key, nil
}

var title = cases.Title(language.English)

func renderKind(k types.ChangeKind) string {
	return title.String(k.String())
}

// renderBytes prints printable keys as text and everything else as hex.
func renderBytes(b []byte) string {
	if b == nil {
		return "-"
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return "0x" + hex.EncodeToString(b)
		}
	}
	return string(b)
}

func renderChange(c types.EntryChange) string {
	value := "-"
	if c.Kind != types.ChangeRemoved {
		value = "0x" + hex.EncodeToString(c.Value)
	}
	return fmt.Sprintf("%d\t%d\t%s\t%s\t%s", c.Sequence, c.Timestamp, renderKind(c.Kind), renderBytes(c.Key), value)
}
