package kvstore

import (
	"encoding/binary"
)

// Key layout. Every key starts with a one byte prefix.
const (
	// 'h' -> head sequence (8 bytes BE) + head timestamp (8 bytes BE)
	prefixHead = 'h'
	// 's' + entry_key -> current value
	prefixState = 's'
	// 'k' + u32 BE key length + entry_key + sequence BE -> encoded EntryChange
	prefixKeyHistory = 'k'
	// 'c' + sequence BE + entry_key -> encoded EntryChange
	prefixChanges = 'c'
	// 't' + sequence BE -> encoded transition header and operation log
	prefixTransition = 't'
)

func headKey() []byte {
	return []byte{prefixHead}
}

func stateKey(key []byte) []byte {
	return append([]byte{prefixState}, key...)
}

func keyHistoryPrefix(key []byte) []byte {
	out := make([]byte, 0, 1+4+len(key)+8)
	out = append(out, prefixKeyHistory)
	out = binary.BigEndian.AppendUint32(out, uint32(len(key)))
	return append(out, key...)
}

func keyHistoryKey(key []byte, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(keyHistoryPrefix(key), seq)
}

func changesKey(seq uint64, key []byte) []byte {
	out := make([]byte, 0, 1+8+len(key))
	out = append(out, prefixChanges)
	out = binary.BigEndian.AppendUint64(out, seq)
	return append(out, key...)
}

// changesBound is the first changes key of seq.
func changesBound(seq uint64) []byte {
	return changesKey(seq, nil)
}

// keyFromChanges extracts the entry key of a changes key.
func keyFromChanges(k []byte) []byte {
	if len(k) < 1+8 {
		return nil
	}
	return k[1+8:]
}

func transitionKey(seq uint64) []byte {
	out := []byte{prefixTransition}
	return binary.BigEndian.AppendUint64(out, seq)
}

func encodeHead(seq uint64, ts int64) []byte {
	out := make([]byte, 0, 16)
	out = binary.BigEndian.AppendUint64(out, seq)
	return binary.BigEndian.AppendUint64(out, uint64(ts))
}

func decodeHead(b []byte) (uint64, int64, bool) {
	if len(b) != 16 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint64(b[:8]), int64(binary.BigEndian.Uint64(b[8:])), true
}
