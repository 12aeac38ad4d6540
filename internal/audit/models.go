package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"user_id"`
	Wallet     string    `json:"wallet,omitempty"`
	Action     string    `json:"action"`
	DocumentID string    `json:"document_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventIdentityCreated        AuditEvent = "identity_created"
	EventWalletLogin            AuditEvent = "wallet_login"
	EventDocumentUploaded       AuditEvent = "document_uploaded"
	EventDocumentVerified       AuditEvent = "document_verified"
	EventVerificationRolledBack AuditEvent = "verification_rolled_back"
	EventLedgerAnchorBackfilled AuditEvent = "ledger_anchor_backfilled"
	EventVerificationReconciled AuditEvent = "verification_reconciled"
)
