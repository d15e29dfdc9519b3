package shared

// LedgerRecorder observes the outcome of ledger operations.
type LedgerRecorder interface {
	ObserveLedger(operation string, err error)
}

// NopRecorder discards observations.
type NopRecorder struct{}

// ObserveLedger implements LedgerRecorder.
func (NopRecorder) ObserveLedger(string, error) {}
