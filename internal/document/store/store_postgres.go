package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"ekyc/internal/document/models"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists document records and verification events.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const recordColumns = `id, owner_id, content_id, document_type, file_name, file_size, digest, status,
	uploaded_at, verified_by, verification_date, notes, ledger_index, anchor_tx_hash, anchor_address,
	chain_index, ledger_tx_hash`

func (s *PostgresStore) Create(ctx context.Context, record *models.DocumentRecord) error {
	if record == nil {
		return fmt.Errorf("document record is required")
	}
	query := `INSERT INTO documents (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.execer().ExecContext(ctx, query, recordArgs(record)...)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.DocumentID) (*models.DocumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE id = $1`
	record, err := scanRecord(s.execer().QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return record, nil
}

// Update rewrites the mutable columns. Content id, owner and ledger index
// are immutable and never written after Create.
func (s *PostgresStore) Update(ctx context.Context, record *models.DocumentRecord) error {
	if record == nil {
		return fmt.Errorf("document record is required")
	}
	query := `
		UPDATE documents SET
			status = $2,
			verified_by = $3,
			verification_date = $4,
			notes = $5,
			anchor_tx_hash = $6,
			anchor_address = $7,
			chain_index = $8,
			ledger_tx_hash = $9
		WHERE id = $1
	`
	res, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(record.ID),
		string(record.Status),
		nullableUserID(record.VerifiedBy),
		nullableTime(record.VerificationDate),
		record.Notes,
		nullableString(record.AnchorTxHash),
		nullableString(record.AnchorAddress.String()),
		nullableIndex(record.ChainIndex),
		nullableString(record.TxHash),
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner domain.UserID, filter models.ListFilter) ([]*models.DocumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE owner_id = $1`
	args := []any{uuid.UUID(owner)}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ExcludeStatus != nil {
		args = append(args, string(*filter.ExcludeStatus))
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}
	if filter.NameContains != "" {
		args = append(args, "%"+escapeLike(filter.NameContains)+"%")
		query += fmt.Sprintf(" AND file_name ILIKE $%d", len(args))
	}
	query += " ORDER BY uploaded_at DESC"
	return s.queryRecords(ctx, query, args...)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.DocumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE status = $1 ORDER BY uploaded_at ASC`
	return s.queryRecords(ctx, query, string(status))
}

func (s *PostgresStore) ListUnanchored(ctx context.Context, contentID string) ([]*models.DocumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM documents
		WHERE content_id = $1 AND anchor_tx_hash IS NULL
		ORDER BY uploaded_at ASC`
	return s.queryRecords(ctx, query, contentID)
}

func (s *PostgresStore) FindByAnchorTx(ctx context.Context, txHash string) (*models.DocumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM documents WHERE anchor_tx_hash = $1 LIMIT 1`
	return s.findOne(ctx, "find document by anchor tx", query, txHash)
}

func (s *PostgresStore) FindByChainSlot(ctx context.Context, owner domain.WalletAddress, index uint64) (*models.DocumentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM documents
		WHERE anchor_address = $1 AND chain_index = $2
		LIMIT 1`
	return s.findOne(ctx, "find document by chain slot", query, owner.String(), int64(index))
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, args ...any) (*models.DocumentRecord, error) {
	record, err := scanRecord(s.execer().QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return record, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.VerificationEvent) error {
	query := `
		INSERT INTO verification_events (id, document_id, verifier_id, status, notes, ledger_tx_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer().ExecContext(ctx, query,
		uuid.UUID(event.ID),
		uuid.UUID(event.DocumentID),
		uuid.UUID(event.VerifierID),
		string(event.Status),
		event.Notes,
		event.TxHash,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append verification event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, documentID domain.DocumentID) ([]*models.VerificationEvent, error) {
	query := `
		SELECT id, document_id, verifier_id, status, notes, ledger_tx_hash, created_at
		FROM verification_events
		WHERE document_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.execer().QueryContext(ctx, query, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("list verification events: %w", err)
	}
	defer rows.Close()

	var events []*models.VerificationEvent
	for rows.Next() {
		var (
			id, docID, verifier uuid.UUID
			status              string
			e                   models.VerificationEvent
		)
		if err := rows.Scan(&id, &docID, &verifier, &status, &e.Notes, &e.TxHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan verification event: %w", err)
		}
		e.ID = domain.EventID(id)
		e.DocumentID = domain.DocumentID(docID)
		e.VerifierID = domain.UserID(verifier)
		e.Status = models.Status(status)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]*models.DocumentRecord, error) {
	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var records []*models.DocumentRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.DocumentRecord, error) {
	var (
		id, owner, ledgerIndex         uuid.UUID
		docType, status                string
		verifiedBy                     uuid.NullUUID
		verificationDate               sql.NullTime
		anchorTx, anchorAddr, verifyTx sql.NullString
		chainIndex                     sql.NullInt64
		r                              models.DocumentRecord
	)
	err := row.Scan(&id, &owner, &r.ContentID, &docType, &r.FileName, &r.FileSize, &r.Digest, &status,
		&r.UploadedAt, &verifiedBy, &verificationDate, &r.Notes, &ledgerIndex, &anchorTx, &anchorAddr,
		&chainIndex, &verifyTx)
	if err != nil {
		return nil, err
	}
	r.ID = domain.DocumentID(id)
	r.OwnerID = domain.UserID(owner)
	r.LedgerIndex = domain.LedgerIndex(ledgerIndex)
	r.DocumentType = models.DocumentType(docType)
	r.Status = models.Status(status)
	if verifiedBy.Valid {
		v := domain.UserID(verifiedBy.UUID)
		r.VerifiedBy = &v
	}
	if verificationDate.Valid {
		t := verificationDate.Time
		r.VerificationDate = &t
	}
	r.AnchorTxHash = anchorTx.String
	r.TxHash = verifyTx.String
	if anchorAddr.Valid {
		w, err := domain.ParseWalletAddress(anchorAddr.String)
		if err != nil {
			return nil, fmt.Errorf("stored anchor address: %w", err)
		}
		r.AnchorAddress = w
	}
	if chainIndex.Valid {
		idx := uint64(chainIndex.Int64)
		r.ChainIndex = &idx
	}
	return &r, nil
}

func recordArgs(r *models.DocumentRecord) []any {
	return []any{
		uuid.UUID(r.ID),
		uuid.UUID(r.OwnerID),
		r.ContentID,
		string(r.DocumentType),
		r.FileName,
		r.FileSize,
		r.Digest,
		string(r.Status),
		r.UploadedAt,
		nullableUserID(r.VerifiedBy),
		nullableTime(r.VerificationDate),
		r.Notes,
		uuid.UUID(r.LedgerIndex),
		nullableString(r.AnchorTxHash),
		nullableString(r.AnchorAddress.String()),
		nullableIndex(r.ChainIndex),
		nullableString(r.TxHash),
	}
}

func nullableUserID(id *domain.UserID) any {
	if id == nil {
		return nil
	}
	return uuid.UUID(*id)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableIndex(i *uint64) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
