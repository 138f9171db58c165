package kvstore

import (
	"github.com/xycloo/zephyr-go/codec"
	"github.com/xycloo/zephyr-go/ledger"
)

type opRecord ledger.Operation

func (op opRecord) MarshalZephyr(e *codec.Encoder) {
	e.PutU8(uint8(op.Kind))
	e.PutBytes(op.Key)
	e.PutBytes(op.Value)
}

func (op *opRecord) UnmarshalZephyr(d *codec.Decoder) error {
	kind, err := d.U8()
	if err != nil {
		return err
	}
	op.Kind = ledger.OpKind(kind)
	if op.Key, err = d.Bytes(); err != nil {
		return err
	}
	op.Value, err = d.Bytes()
	return err
}

type transitionRecord struct {
	InvocationID uint64
	Timestamp    int64
	Ops          []ledger.Operation
}

func (r transitionRecord) MarshalZephyr(e *codec.Encoder) {
	e.PutU64(r.InvocationID)
	e.PutI64(r.Timestamp)
	e.PutLen(len(r.Ops))
	for _, op := range r.Ops {
		opRecord(op).MarshalZephyr(e)
	}
}

func (r *transitionRecord) UnmarshalZephyr(d *codec.Decoder) (err error) {
	if r.InvocationID, err = d.U64(); err != nil {
		return err
	}
	if r.Timestamp, err = d.I64(); err != nil {
		return err
	}
	ops, err := codec.ReadSeq[opRecord](d)
	if err != nil {
		return err
	}
	r.Ops = make([]ledger.Operation, len(ops))
	for i, op := range ops {
		r.Ops[i] = ledger.Operation(op)
	}
	return nil
}
