// Package cell defines the canonical address, value, and origin types shared
// by every reconciliation component, plus the snapshot diff algorithm.
package cell

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxRow is the largest row number a CellAddress may reference.
	MaxRow = 10000
	// MaxCol is the largest column index (A=1) a CellAddress may reference.
	MaxCol = 26
	// MaxValueBytes is the largest a CellValue may be.
	MaxValueBytes = 5000
)

// Address is a validated (row, column) pair. Construct it with NewAddress or
// ParseAddress; the zero value is not a valid address.
type Address struct {
	row int
	col int // 1-based, A=1
}

// NewAddress validates row and column-letter bounds and returns the
// canonical address.
func NewAddress(row int, colLetter string) (Address, error) {
	col, err := ColumnIndex(colLetter)
	if err != nil {
		return Address{}, err
	}
	return newAddress(row, col)
}

func newAddress(row, col int) (Address, error) {
	if row < 1 || row > MaxRow {
		return Address{}, fmt.Errorf("cell: row %d out of range [1,%d]", row, MaxRow)
	}
	if col < 1 || col > MaxCol {
		return Address{}, fmt.Errorf("cell: column index %d out of range [1,%d]", col, MaxCol)
	}
	return Address{row: row, col: col}, nil
}

// ParseAddress parses the canonical "<row>:<col>" string form.
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("cell: malformed address %q", s)
	}
	row, err := strconv.Atoi(parts[0])
	if err != nil {
		return Address{}, fmt.Errorf("cell: malformed row in %q: %w", s, err)
	}
	return NewAddress(row, parts[1])
}

// Row returns the 1-based row number.
func (a Address) Row() int { return a.row }

// Col returns the 1-based column index (A=1).
func (a Address) Col() int { return a.col }

// ColumnLetter returns the column's one-letter alphabetic identifier.
func (a Address) ColumnLetter() string { return ColumnLetter(a.col) }

// String returns the canonical "<row>:<col>" form used as the KV key suffix
// and the store's natural key.
func (a Address) String() string {
	return fmt.Sprintf("%d:%s", a.row, a.ColumnLetter())
}

// IsZero reports whether a is the unconstructed zero value.
func (a Address) IsZero() bool { return a.row == 0 && a.col == 0 }

// MarshalText implements encoding.TextMarshaler so Address can be used as a
// JSON map key (e.g. when persisting a Snapshot to the KV).
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ColumnLetter converts a 1-based column index into its alphabetic
// identifier. Only single-letter columns are supported (index in [1,26]),
// matching MaxCol.
func ColumnLetter(col int) string {
	if col < 1 || col > 26 {
		return ""
	}
	return string(rune('A' + col - 1))
}

// ColumnIndex converts a one-letter alphabetic column identifier into its
// 1-based index.
func ColumnIndex(letter string) (int, error) {
	letter = strings.TrimSpace(letter)
	if len(letter) != 1 {
		return 0, fmt.Errorf("cell: column identifier %q must be a single letter", letter)
	}
	c := strings.ToUpper(letter)[0]
	if c < 'A' || c > 'Z' {
		return 0, fmt.Errorf("cell: column identifier %q is not alphabetic", letter)
	}
	return int(c-'A') + 1, nil
}

// Value is a cell's content, capped at MaxValueBytes. The empty string and
// "absent" are distinct constructs at this layer: Value never represents
// absence on its own, callers track absence with a separate bool or by
// omission from a map.
type Value string

// Validate reports whether v respects the byte-length invariant.
func (v Value) Validate() error {
	if len(v) > MaxValueBytes {
		return fmt.Errorf("cell: value exceeds %d bytes (got %d)", MaxValueBytes, len(v))
	}
	return nil
}

// Empty reports whether v is the empty string.
func (v Value) Empty() bool { return v == "" }
