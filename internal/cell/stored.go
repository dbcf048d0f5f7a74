package cell

import "time"

// StoredCell is the relational store's representation of one cell. The
// store enforces at most one StoredCell per Address.
type StoredCell struct {
	Address   Address
	Value     Value
	Origin    Tag
	UpdatedAt time.Time
}

// PendingChange is one durable entry in the offline queue (§4.7): a write
// that could not reach its target peer and must be replayed on recovery.
type PendingChange struct {
	Address   Address
	Value     Value
	Origin    Tag
	Timestamp time.Time
}
