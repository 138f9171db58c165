package sqlstore

// DBTransition is one committed transition. The operation log is kept as a
// CBOR blob so the issued write order can be replayed.
type DBTransition struct {
	ID           uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Sequence     uint64 `gorm:"column:sequence;not null;unique;index"`
	InvocationID uint64 `gorm:"column:invocation_id;not null;index"`
	Timestamp    int64  `gorm:"column:ts;not null"`
	Ops          []byte `gorm:"column:ops;type:blob;not null"`
}

// TableName specifies the table name for DBTransition
func (DBTransition) TableName() string {
	return "transitions"
}

// DBEntry is the net change of one key in one transition.
type DBEntry struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Sequence  uint64 `gorm:"column:sequence;not null;index;uniqueIndex:idx_entry_key_seq,priority:2"`
	Key       []byte `gorm:"column:entry_key;type:blob;not null;uniqueIndex:idx_entry_key_seq,priority:1"`
	Kind      uint8  `gorm:"column:kind;not null"`
	Value     []byte `gorm:"column:entry_value;type:blob"`
	Timestamp int64  `gorm:"column:ts;not null"`
}

// TableName specifies the table name for DBEntry
func (DBEntry) TableName() string {
	return "entries"
}
