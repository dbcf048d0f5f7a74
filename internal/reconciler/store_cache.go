package reconciler

import (
	"encoding/json"
	"errors"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/kv"
)

// errNoStoreCache is returned by degradedReadFromSnapshotDB when the KV
// holds no snapshot:db cache to degrade to (spec §4.6 step 2: "if absent,
// abort").
var errNoStoreCache = errors.New("reconciler: no cached store snapshot available")

func cacheKeyDB() string { return kv.SnapshotDBKey }

type cachedCell struct {
	Address string `json:"address"`
	Value   string `json:"value"`
	Origin  string `json:"origin"`
}

func encodeStoredCells(cells []cell.StoredCell) (string, error) {
	out := make([]cachedCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, cachedCell{Address: c.Address.String(), Value: string(c.Value), Origin: string(c.Origin)})
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func decodeStoredCells(raw string) ([]cell.StoredCell, error) {
	var in []cachedCell
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, err
	}
	out := make([]cell.StoredCell, 0, len(in))
	for _, c := range in {
		addr, err := cell.ParseAddress(c.Address)
		if err != nil {
			continue
		}
		out = append(out, cell.StoredCell{Address: addr, Value: cell.Value(c.Value), Origin: cell.Tag(c.Origin)})
	}
	return out, nil
}
