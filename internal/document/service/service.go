// Package service drives the document lifecycle across the record store, the
// content store and the ledger.
//
// Upload favours availability: once the content and the record exist the
// upload succeeds, and ledger trouble is reported as an advisory. Verify
// favours consistency: the verdict is written provisionally, and it is rolled
// back to the exact pre-call state unless the ledger confirms it.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"ekyc/internal/audit"
	"ekyc/internal/contentstore"
	docmetrics "ekyc/internal/document/metrics"
	"ekyc/internal/document/models"
	idmodels "ekyc/internal/identity/models"
	"ekyc/internal/ledger"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
	platformsync "ekyc/pkg/platform/sync"
)

// Store defines the persistence interface for document records.
// Error Contract:
// - FindByID, FindByAnchorTx and FindByChainSlot return sentinel.ErrNotFound when nothing matches
// - Update and AppendEvent return sentinel.ErrNotFound for an unknown document
// - Create returns sentinel.ErrConflict on a duplicate id or ledger index
type Store interface {
	Create(ctx context.Context, record *models.DocumentRecord) error
	FindByID(ctx context.Context, id domain.DocumentID) (*models.DocumentRecord, error)
	Update(ctx context.Context, record *models.DocumentRecord) error
	ListByOwner(ctx context.Context, owner domain.UserID, filter models.ListFilter) ([]*models.DocumentRecord, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.DocumentRecord, error)
	// ListUnanchored returns records for contentID without an anchor tx, oldest first.
	ListUnanchored(ctx context.Context, contentID string) ([]*models.DocumentRecord, error)
	FindByAnchorTx(ctx context.Context, txHash string) (*models.DocumentRecord, error)
	FindByChainSlot(ctx context.Context, owner domain.WalletAddress, index uint64) (*models.DocumentRecord, error)
	AppendEvent(ctx context.Context, event *models.VerificationEvent) error
	ListEvents(ctx context.Context, documentID domain.DocumentID) ([]*models.VerificationEvent, error)
}

// IdentityReader resolves owners and verifiers. Get returns domain errors.
type IdentityReader interface {
	Get(ctx context.Context, id domain.UserID) (*idmodels.Identity, error)
}

// Notifier publishes a best-effort message to a user's channel.
type Notifier interface {
	Notify(ctx context.Context, userID domain.UserID, message string) error
}

type Service struct {
	store      Store
	tx         StoreTx
	identities IdentityReader
	content    contentstore.Store
	ledger     ledger.Ledger
	signers    ledger.SignerResolver
	notifier   Notifier
	auditor    *audit.Publisher
	metrics    *docmetrics.Metrics
	locks      *platformsync.KeyedMutex
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithTx(tx StoreTx) Option { return func(s *Service) { s.tx = tx } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithAuditor(a *audit.Publisher) Option { return func(s *Service) { s.auditor = a } }
func WithMetrics(m *docmetrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSignerResolver sets how wallets map to on-chain senders when ledger
// events are matched to records. It defaults to the ledger itself when the
// ledger implements ledger.SignerResolver, and to the wallet otherwise.
func WithSignerResolver(r ledger.SignerResolver) Option { return func(s *Service) { s.signers = r } }

func NewService(store Store, identities IdentityReader, content contentstore.Store, ldg ledger.Ledger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		identities: identities,
		content:    content,
		ledger:     ldg,
		locks:      platformsync.NewKeyedMutex(),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedTx(store)
	}
	if s.signers == nil {
		if r, ok := ldg.(ledger.SignerResolver); ok {
			s.signers = r
		} else {
			s.signers = selfSigner{}
		}
	}
	return s
}

type selfSigner struct{}

func (selfSigner) SignerFor(wallet domain.WalletAddress) (domain.WalletAddress, bool) {
	return wallet, !wallet.IsZero()
}

// Upload stores data in the content store, records it as Pending and then
// tries to anchor it on the ledger under the owner's wallet.
func (s *Service) Upload(ctx context.Context, ownerID domain.UserID, data []byte, fileName, documentType string) (*models.UploadResult, error) {
	docType, err := models.ParseDocumentType(documentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "file name is required")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "file is empty")
	}

	owner, err := s.identities.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	contentID, err := s.content.Put(ctx, data, fileName)
	if err != nil {
		mapped := contentstore.ToDomain(err)
		s.metrics.IncUploadFailure(string(dErrors.CodeOf(mapped)))
		s.logger.WarnContext(ctx, "content store rejected upload",
			"user_id", ownerID.String(),
			"file_name", fileName,
			"error", err,
		)
		return nil, dErrors.Reclassify(mapped, dErrors.CodeUploadFailed, "document upload failed")
	}

	record := models.NewDocumentRecord(ownerID, contentID, docType, fileName, int64(len(data)), digest(data), s.now())
	if err := s.store.Create(ctx, record); err != nil {
		s.metrics.IncUploadFailure(string(dErrors.CodeInternal))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document record")
	}
	s.metrics.IncUploaded(docType.String())
	s.emit(ctx, audit.EventDocumentUploaded, ownerID, owner.Wallet, record, "")

	result := &models.UploadResult{Record: record}
	if !owner.HasWallet() {
		result.Advisory = &models.Advisory{
			Code:    models.AdvisoryLedgerSkipped,
			Message: "owner has no wallet bound; ledger anchoring skipped",
		}
		s.metrics.IncAdvisory(models.AdvisoryLedgerSkipped)
		return result, nil
	}

	result.Advisory = s.anchor(ctx, owner, record)
	if result.Advisory != nil {
		s.metrics.IncAdvisory(result.Advisory.Code)
	}
	return result, nil
}

// anchor submits uploadDocument and records where the entry landed on chain.
// The returned advisory is nil when the anchor is fully recorded.
func (s *Service) anchor(ctx context.Context, owner *idmodels.Identity, record *models.DocumentRecord) *models.Advisory {
	// Inclusion is awaited even if the caller goes away; the record already exists.
	ledgerCtx := context.WithoutCancel(ctx)
	receipt, err := s.ledger.Submit(ledgerCtx, ledger.Call{
		Method: ledger.MethodUploadDocument,
		Args:   ledger.UploadArgs(record.ContentID, record.DocumentType.String()),
		Signer: owner.Wallet,
	})
	if err != nil {
		mapped := ledger.ToDomain(err)
		s.logger.WarnContext(ctx, "ledger anchor failed; document kept as pending",
			"document_id", record.ID.String(),
			"content_id", record.ContentID,
			"error", err,
		)
		return &models.Advisory{
			Code:    models.AdvisoryLedgerFailed,
			Message: "document stored but not anchored on the ledger",
			Cause:   string(dErrors.CodeOf(mapped)),
		}
	}

	record.AnchorTxHash = receipt.TxHash
	record.AnchorAddress = receipt.From
	count, err := s.ledger.GetDocumentCountAt(ledgerCtx, receipt.From, receipt.BlockNumber)
	if err == nil && count > 0 {
		index := count - 1
		record.ChainIndex = &index
	} else {
		// The watcher fills in the index from the upload log of this tx.
		s.logger.WarnContext(ctx, "anchored upload but could not read chain position",
			"document_id", record.ID.String(),
			"tx_hash", receipt.TxHash,
			"error", err,
		)
	}

	if err := s.store.Update(ledgerCtx, record); err != nil {
		s.logger.ErrorContext(ctx, "failed to record ledger anchor",
			"document_id", record.ID.String(),
			"tx_hash", receipt.TxHash,
			"error", err,
		)
		record.AnchorTxHash = ""
		record.AnchorAddress = ""
		record.ChainIndex = nil
		return anchorNotRecorded(receipt.TxHash)
	}
	if record.ChainIndex == nil {
		return anchorNotRecorded(receipt.TxHash)
	}
	return nil
}

func anchorNotRecorded(txHash string) *models.Advisory {
	return &models.Advisory{
		Code:    models.AdvisoryAnchorNotRecorded,
		Message: fmt.Sprintf("anchored in %s; chain position will be reconciled", txHash),
	}
}

// Verify records decision for a document on behalf of an institution. The
// verdict only stands if the ledger confirms it; otherwise the record is
// restored and VerificationFailed is returned.
func (s *Service) Verify(ctx context.Context, verifierID domain.UserID, documentID domain.DocumentID, decision, notes string) (*models.VerifyResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveVerifyLatency(time.Since(start).Seconds()) }()

	status, err := models.ParseDecision(decision)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, err.Error())
	}
	verifier, err := s.requireInstitution(ctx, verifierID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID.String())
	defer unlock()

	record, err := s.find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !record.HasChainSlot() {
		noSlot := &ledger.Error{
			Kind:    ledger.KindRejected,
			Method:  ledger.MethodVerifyDocument,
			Message: "document has no recorded on-chain position",
		}
		s.metrics.IncRolledBack(string(dErrors.CodeLedgerRejected))
		return nil, dErrors.Reclassify(ledger.ToDomain(noSlot), dErrors.CodeVerificationFailed, "verification did not take effect")
	}

	// The remaining writes must land even if the caller disconnects mid-flight.
	ctx = context.WithoutCancel(ctx)

	snapshot := record.Clone()
	record.ApplyDecision(verifierID, status, notes, s.now())
	if err := s.store.Update(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}

	receipt, err := s.ledger.Submit(ctx, ledger.Call{
		Method: ledger.MethodVerifyDocument,
		Args:   ledger.VerifyArgs(record.AnchorAddress, *record.ChainIndex, string(status), notes),
		Signer: verifier.Wallet,
	})
	if err != nil {
		mapped := ledger.ToDomain(err)
		s.rollback(ctx, verifier, record, snapshot, mapped)
		return nil, dErrors.Reclassify(mapped, dErrors.CodeVerificationFailed, "verification did not take effect")
	}

	event := &models.VerificationEvent{
		ID:         domain.NewEventID(),
		DocumentID: record.ID,
		VerifierID: verifierID,
		Status:     status,
		Notes:      notes,
		TxHash:     receipt.TxHash,
		CreatedAt:  s.now(),
	}
	record.TxHash = receipt.TxHash
	err = s.tx.RunInTx(withShardKey(ctx, record.ID.String()), func(ctx context.Context, store Store) error {
		if err := store.AppendEvent(ctx, event); err != nil {
			return err
		}
		return store.Update(ctx, record)
	})
	if err != nil {
		// The ledger holds the verdict; ReconcileVerification finalizes it from the log.
		s.logger.ErrorContext(ctx, "verification anchored but not recorded",
			"document_id", record.ID.String(),
			"tx_hash", receipt.TxHash,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verification anchored but not recorded")
	}

	s.metrics.IncVerified(string(status))
	s.emit(ctx, audit.EventDocumentVerified, verifierID, verifier.Wallet, record, "")
	s.logger.InfoContext(ctx, "document verified",
		"document_id", record.ID.String(),
		"status", string(status),
		"tx_hash", receipt.TxHash,
	)
	s.notifyOwner(ctx, record)

	return &models.VerifyResult{Record: record, Event: event}, nil
}

func (s *Service) rollback(ctx context.Context, verifier *idmodels.Identity, record, snapshot *models.DocumentRecord, cause error) {
	s.metrics.IncRolledBack(string(dErrors.CodeOf(cause)))
	record.RestoreVerification(snapshot)
	if err := s.store.Update(ctx, record); err != nil {
		s.metrics.IncRollbackFailure()
		s.logger.ErrorContext(ctx, "failed to roll back provisional verification",
			"document_id", record.ID.String(),
			"cause", cause,
			"error", err,
		)
		return
	}
	s.logger.WarnContext(ctx, "verification rolled back after ledger failure",
		"document_id", record.ID.String(),
		"error", cause,
	)
	s.emit(ctx, audit.EventVerificationRolledBack, verifier.ID, verifier.Wallet, record, cause.Error())
}

func (s *Service) notifyOwner(ctx context.Context, record *models.DocumentRecord) {
	if s.notifier == nil {
		return
	}
	msg := fmt.Sprintf("Your document '%s' has been %s.", record.FileName, strings.ToLower(string(record.Status)))
	if err := s.notifier.Notify(ctx, record.OwnerID, msg); err != nil {
		s.metrics.IncNotificationFailed()
		s.logger.WarnContext(ctx, "failed to notify document owner",
			"user_id", record.OwnerID.String(),
			"document_id", record.ID.String(),
			"error", err,
		)
	}
}

// ReconcileAnchor records an on-chain upload against the local record it
// belongs to and reports whether a record was updated.
//
// A log whose transaction is already recorded only fills in a missing chain
// index. Otherwise the oldest unanchored record with the same content id
// whose owner's wallet signs as the log's sender takes the slot. Records of
// owners without a wallet are never anchored.
func (s *Service) ReconcileAnchor(ctx context.Context, anchor ledger.Anchor) (bool, error) {
	if anchor.TxHash == "" {
		return false, nil
	}
	known, err := s.store.FindByAnchorTx(ctx, anchor.TxHash)
	switch {
	case err == nil:
		return s.applyAnchor(ctx, known.ID, anchor, false)
	case !errors.Is(err, sentinel.ErrNotFound):
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up anchored document")
	}

	candidates, err := s.store.ListUnanchored(ctx, anchor.ContentID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up unanchored documents")
	}
	for _, candidate := range candidates {
		owner, err := s.identities.Get(ctx, candidate.OwnerID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				continue
			}
			return false, err
		}
		if !owner.HasWallet() || !s.signsAs(owner.Wallet, anchor.Owner) {
			continue
		}
		applied, err := s.applyAnchor(ctx, candidate.ID, anchor, true)
		if err != nil || applied {
			return applied, err
		}
	}
	return false, nil
}

func (s *Service) signsAs(wallet, sender domain.WalletAddress) bool {
	signer, ok := s.signers.SignerFor(wallet)
	return ok && signer.Equal(sender)
}

// applyAnchor writes anchor to the record under its lock. claim takes an
// unanchored record; otherwise only the chain index of the record already
// holding anchor.TxHash is filled in.
func (s *Service) applyAnchor(ctx context.Context, id domain.DocumentID, anchor ledger.Anchor, claim bool) (bool, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload document")
	}
	if claim && record.AnchorTxHash != "" {
		return false, nil
	}
	if !claim && (record.AnchorTxHash != anchor.TxHash || record.ChainIndex != nil) {
		return false, nil
	}

	index := anchor.ChainIndex
	record.AnchorTxHash = anchor.TxHash
	record.AnchorAddress = anchor.Owner
	record.ChainIndex = &index
	if err := s.store.Update(ctx, record); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger anchor")
	}
	s.metrics.IncBackfilled()
	s.emit(ctx, audit.EventLedgerAnchorBackfilled, record.OwnerID, anchor.Owner, record, "")
	s.logger.InfoContext(ctx, "ledger anchor backfilled",
		"document_id", record.ID.String(),
		"tx_hash", anchor.TxHash,
		"chain_index", anchor.ChainIndex,
	)
	return true, nil
}

// ReconcileVerification finalizes a provisional verdict from its
// DocumentVerified log: the verification event is appended and the record
// takes the transaction hash. Logs that do not match the record's pending
// decision and verifier, or whose transaction is already recorded, are
// ignored. It reports whether a record was finalized.
func (s *Service) ReconcileVerification(ctx context.Context, ev ledger.VerifiedEvent) (bool, error) {
	if ev.TxHash == "" {
		return false, nil
	}
	found, err := s.store.FindByChainSlot(ctx, ev.Owner, ev.DocIndex)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up document by chain slot")
	}

	unlock := s.locks.Lock(found.ID.String())
	defer unlock()

	record, err := s.store.FindByID(ctx, found.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload document")
	}
	if !record.IsProvisional() || string(record.Status) != ev.Status || record.VerifiedBy == nil {
		return false, nil
	}
	verifier, err := s.identities.Get(ctx, *record.VerifiedBy)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if !s.signsAs(verifier.Wallet, ev.Verifier) {
		return false, nil
	}
	events, err := s.store.ListEvents(ctx, record.ID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification events")
	}
	for _, e := range events {
		if e.TxHash == ev.TxHash {
			return false, nil
		}
	}

	event := &models.VerificationEvent{
		ID:         domain.NewEventID(),
		DocumentID: record.ID,
		VerifierID: verifier.ID,
		Status:     record.Status,
		Notes:      record.Notes,
		TxHash:     ev.TxHash,
		CreatedAt:  s.now(),
	}
	record.TxHash = ev.TxHash
	err = s.tx.RunInTx(withShardKey(ctx, record.ID.String()), func(ctx context.Context, store Store) error {
		if err := store.AppendEvent(ctx, event); err != nil {
			return err
		}
		return store.Update(ctx, record)
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record reconciled verification")
	}

	s.metrics.IncVerificationReconciled()
	s.emit(ctx, audit.EventVerificationReconciled, verifier.ID, verifier.Wallet, record, "")
	s.logger.InfoContext(ctx, "provisional verification finalized from ledger",
		"document_id", record.ID.String(),
		"status", string(record.Status),
		"tx_hash", ev.TxHash,
	)
	s.notifyOwner(ctx, record)
	return true, nil
}

// ListByOwner returns the owner's documents, newest first.
func (s *Service) ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.DocumentRecord, error) {
	return s.list(ctx, owner, models.ListFilter{})
}

// History returns the owner's documents that have left Pending.
func (s *Service) History(ctx context.Context, owner domain.UserID) ([]*models.DocumentRecord, error) {
	pending := models.StatusPending
	return s.list(ctx, owner, models.ListFilter{ExcludeStatus: &pending})
}

// Search matches the owner's file names case-insensitively.
func (s *Service) Search(ctx context.Context, owner domain.UserID, query string) ([]*models.DocumentRecord, error) {
	return s.list(ctx, owner, models.ListFilter{NameContains: strings.TrimSpace(query)})
}

func (s *Service) list(ctx context.Context, owner domain.UserID, filter models.ListFilter) ([]*models.DocumentRecord, error) {
	records, err := s.store.ListByOwner(ctx, owner, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return records, nil
}

// ListPending returns the verification queue, oldest first. Institutions only.
func (s *Service) ListPending(ctx context.Context, requester domain.UserID) ([]*models.DocumentRecord, error) {
	if _, err := s.requireInstitution(ctx, requester); err != nil {
		return nil, err
	}
	records, err := s.store.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending documents")
	}
	return records, nil
}

// Get returns a document visible to requester: its owner or any institution.
// Other callers get NotFound.
func (s *Service) Get(ctx context.Context, requester domain.UserID, id domain.DocumentID) (*models.DocumentRecord, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.OwnerID == requester {
		return record, nil
	}
	identity, err := s.identities.Get(ctx, requester)
	if err != nil || !identity.IsInstitution {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return record, nil
}

// ListEvents returns the verification history of a document visible to requester.
func (s *Service) ListEvents(ctx context.Context, requester domain.UserID, id domain.DocumentID) ([]*models.VerificationEvent, error) {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification events")
	}
	return events, nil
}

// Locator returns the retrieval URL of a document's content.
func (s *Service) Locator(record *models.DocumentRecord) (string, error) {
	locator, err := s.content.Resolve(record.ContentID)
	if err != nil {
		return "", contentstore.ToDomain(err)
	}
	return locator, nil
}

func (s *Service) find(ctx context.Context, id domain.DocumentID) (*models.DocumentRecord, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return record, nil
}

func (s *Service) requireInstitution(ctx context.Context, id domain.UserID) (*idmodels.Identity, error) {
	identity, err := s.identities.Get(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "institution capability required")
		}
		return nil, err
	}
	if !identity.IsInstitution {
		return nil, dErrors.New(dErrors.CodeForbidden, "institution capability required")
	}
	return identity, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, actor domain.UserID, wallet domain.WalletAddress, record *models.DocumentRecord, reason string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		UserID:     actor.String(),
		Wallet:     wallet.String(),
		Action:     string(action),
		DocumentID: record.ID.String(),
		Status:     string(record.Status),
		TxHash:     record.TxHash,
		Reason:     reason,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", action, "error", err)
	}
}

func digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
