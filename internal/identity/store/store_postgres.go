package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"ekyc/internal/identity/models"
	"ekyc/pkg/domain"
	"ekyc/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts identity. A wallet already bound to another identity
// yields sentinel.ErrConflict so the caller can re-read the winner.
func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	if identity == nil {
		return fmt.Errorf("identity is required")
	}
	query := `
		INSERT INTO identities (id, wallet_address, is_institution, verification_status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address) WHERE wallet_address IS NOT NULL DO NOTHING
		RETURNING id
	`
	var stored uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(identity.ID),
		nullableWallet(identity.Wallet),
		identity.IsInstitution,
		string(identity.VerificationStatus),
		identity.CreatedAt,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.UserID) (*models.Identity, error) {
	query := `
		SELECT id, wallet_address, is_institution, verification_status, created_at
		FROM identities
		WHERE id = $1
	`
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) FindByWallet(ctx context.Context, wallet domain.WalletAddress) (*models.Identity, error) {
	query := `
		SELECT id, wallet_address, is_institution, verification_status, created_at
		FROM identities
		WHERE wallet_address = $1
	`
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, wallet.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity by wallet: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) SetInstitution(ctx context.Context, id domain.UserID, institution bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE identities SET is_institution = $2 WHERE id = $1`, uuid.UUID(id), institution)
	if err != nil {
		return fmt.Errorf("set institution: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set institution rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		id     uuid.UUID
		wallet sql.NullString
		status string
		out    models.Identity
	)
	if err := row.Scan(&id, &wallet, &out.IsInstitution, &status, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.ID = domain.UserID(id)
	out.VerificationStatus = models.VerificationStatus(status)
	if wallet.Valid {
		w, err := domain.ParseWalletAddress(wallet.String)
		if err != nil {
			return nil, fmt.Errorf("stored wallet: %w", err)
		}
		out.Wallet = w
	}
	return &out, nil
}

func nullableWallet(w domain.WalletAddress) any {
	if w.IsZero() {
		return nil
	}
	return w.String()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
