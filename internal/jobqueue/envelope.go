package jobqueue

import (
	"encoding/json"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
)

// Envelope is one edge-triggered edit event (spec §4.8, §6's
// {row, col, value, sheetId} ingress shape). JobID is assigned by the
// producer and carried through as the lease owner suffix
// ("worker:<jobId>") so two concurrently-ingested envelopes for the same
// cell serialize through the lock service rather than racing.
type Envelope struct {
	JobID       string `json:"jobId"`
	Row         int    `json:"row"`
	Col         string `json:"col"`
	Value       string `json:"value"`
	SheetID     string `json:"sheetId"`
	SubmittedAt int64  `json:"submittedAt"`
}

func (e Envelope) address() (cell.Address, error) {
	return cell.NewAddress(e.Row, e.Col)
}

// decodeEnvelope validates raw against envelopeSchema and unmarshals it.
// Schema failures are classified errkind.Validation per spec §7: malformed
// ingress input never reaches the core.
func decodeEnvelope(raw []byte) (Envelope, error) {
	if err := validateEnvelope(raw); err != nil {
		return Envelope{}, errkind.New(errkind.Validation, err)
	}
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, errkind.New(errkind.Validation, err)
	}
	return e, nil
}

func encodeEnvelope(e Envelope) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
