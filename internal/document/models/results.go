package models

// Advisory codes attached to a successful upload.
const (
	AdvisoryLedgerSkipped     = "ledger_skipped"
	AdvisoryLedgerFailed      = "ledger_failed"
	AdvisoryAnchorNotRecorded = "anchor_not_recorded"
)

// Advisory reports a degraded secondary effect of an otherwise successful
// operation.
type Advisory struct {
	Code    string
	Message string
	// Cause is the domain error code of the underlying failure, if any.
	Cause string
}

// UploadResult is the outcome of an upload. Advisory is nil when the ledger
// anchor was recorded.
type UploadResult struct {
	Record   *DocumentRecord
	Advisory *Advisory
}

type VerifyResult struct {
	Record *DocumentRecord
	Event  *VerificationEvent
}
