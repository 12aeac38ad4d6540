// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "ekyc/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing UserID where DocumentID is expected.
type (
	UserID     uuid.UUID
	DocumentID uuid.UUID
	EventID    uuid.UUID
	JobID      uuid.UUID
	// LedgerIndex is the local handle correlating a record to its on-chain slot.
	// It is generated at record creation and never changes.
	LedgerIndex uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	id, err := parseUUID(s, "document ID")
	return DocumentID(id), err
}

func ParseJobID(s string) (JobID, error) {
	id, err := parseUUID(s, "job ID")
	return JobID(id), err
}

func NewUserID() UserID           { return UserID(uuid.New()) }
func NewDocumentID() DocumentID   { return DocumentID(uuid.New()) }
func NewEventID() EventID         { return EventID(uuid.New()) }
func NewJobID() JobID             { return JobID(uuid.New()) }
func NewLedgerIndex() LedgerIndex { return LedgerIndex(uuid.New()) }

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id DocumentID) String() string  { return uuid.UUID(id).String() }
func (id EventID) String() string     { return uuid.UUID(id).String() }
func (id JobID) String() string       { return uuid.UUID(id).String() }
func (id LedgerIndex) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps ids readable in JSON payloads.

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id JobID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *JobID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
