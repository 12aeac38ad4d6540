// Package ledger submits document-registry calls to a blockchain contract and
// answers the read-only queries the lifecycle manager depends on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
)

// Ledger is the contract capability. Submit blocks until the transaction is
// included or the configured confirmation wait elapses.
type Ledger interface {
	Submit(ctx context.Context, call Call) (*Receipt, error)
	GetDocumentCount(ctx context.Context, owner domain.WalletAddress) (uint64, error)
	// GetDocumentCountAt reads the count as of a block; 0 means latest.
	GetDocumentCountAt(ctx context.Context, owner domain.WalletAddress, block uint64) (uint64, error)
	IsVerifier(ctx context.Context, addr domain.WalletAddress) (bool, error)
	GetDocument(ctx context.Context, owner domain.WalletAddress, index uint64) (*Document, error)
}

// SignerResolver reports the on-chain sender of a call signed on behalf of
// wallet. ok is false when no key can sign for it.
type SignerResolver interface {
	SignerFor(wallet domain.WalletAddress) (sender domain.WalletAddress, ok bool)
}

// Call is a state-changing contract invocation. Signer selects the key; an
// empty Signer or one without a custodial key signs with the operator key.
type Call struct {
	Method string
	Args   []any
	Signer domain.WalletAddress
}

// Receipt is the confirmation of an included transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
	// From is the address that actually signed, which is the on-chain msg.sender.
	From domain.WalletAddress
}

// Document is the on-chain view of a registry entry.
type Document struct {
	DocumentHash string
	DocumentType string
	Status       string
	Timestamp    time.Time
	Verifier     domain.WalletAddress
	Notes        string
}

// UploadArgs builds the uploadDocument argument list.
func UploadArgs(contentID, documentType string) []any {
	return []any{contentID, documentType}
}

// VerifyArgs builds the verifyDocument argument list.
func VerifyArgs(owner domain.WalletAddress, index uint64, status, notes string) []any {
	return []any{owner.Address(), new(big.Int).SetUint64(index), status, notes}
}

// VerifierArgs builds the addVerifier and removeVerifier argument list.
func VerifierArgs(addr domain.WalletAddress) []any {
	return []any{addr.Address()}
}

// Kind classifies a ledger failure.
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindRejected    Kind = "rejected"
	KindTimeout     Kind = "timeout"
)

var (
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrRejected    = &Error{Kind: KindRejected}
	ErrTimeout     = &Error{Kind: KindTimeout}
)

// Error is the normalized failure returned by every Ledger implementation.
type Error struct {
	Kind       Kind
	Method     string
	Message    string
	TxHash     string
	Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ledger %s [%s]: %s", e.Method, e.Kind, e.Message)
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Underlying }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, method, msg string, underlying error) *Error {
	return &Error{Kind: kind, Method: method, Message: msg, Underlying: underlying}
}

// ToDomain maps a ledger failure onto the domain error taxonomy.
func ToDomain(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if !errors.As(err, &le) {
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger failure")
	}
	code := dErrors.CodeLedgerUnavailable
	switch le.Kind {
	case KindRejected:
		code = dErrors.CodeLedgerRejected
	case KindTimeout:
		code = dErrors.CodeLedgerTimeout
	}
	return &dErrors.Error{Code: code, Message: le.Error(), Err: err}
}
