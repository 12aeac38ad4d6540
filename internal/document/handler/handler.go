package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ekyc/internal/document/models"
	"ekyc/internal/jobs"
	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/httputil"
	"ekyc/pkg/requestcontext"
)

const (
	jobKindUpload = "document_upload"
	jobKindVerify = "document_verify"

	multipartMemory = 1 << 20
)

// Service defines the document operations the handler needs.
type Service interface {
	Upload(ctx context.Context, ownerID domain.UserID, data []byte, fileName, documentType string) (*models.UploadResult, error)
	Verify(ctx context.Context, verifierID domain.UserID, documentID domain.DocumentID, decision, notes string) (*models.VerifyResult, error)
	ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.DocumentRecord, error)
	History(ctx context.Context, owner domain.UserID) ([]*models.DocumentRecord, error)
	Search(ctx context.Context, owner domain.UserID, query string) ([]*models.DocumentRecord, error)
	ListPending(ctx context.Context, requester domain.UserID) ([]*models.DocumentRecord, error)
	Get(ctx context.Context, requester domain.UserID, id domain.DocumentID) (*models.DocumentRecord, error)
	ListEvents(ctx context.Context, requester domain.UserID, id domain.DocumentID) ([]*models.VerificationEvent, error)
	Locator(record *models.DocumentRecord) (string, error)
}

// JobRunner runs slow operations in the background.
type JobRunner interface {
	Submit(ctx context.Context, kind string, owner domain.UserID, fn jobs.Func) (domain.JobID, error)
	Get(ctx context.Context, requester domain.UserID, id domain.JobID) (*jobs.Result, error)
}

type Handler struct {
	service        Service
	jobs           JobRunner
	logger         *slog.Logger
	maxUploadBytes int64
	inlineLedger   bool
}

type Option func(*Handler)

// WithInlineLedgerWait honours ?async=false on upload and verify, running
// the ledger wait on the request goroutine. Only enable it when the ledger
// confirmation timeout is shorter than the request timeout, or the client
// sees a timeout for an operation that still completes.
func WithInlineLedgerWait() Option { return func(h *Handler) { h.inlineLedger = true } }

func New(service Service, runner JobRunner, logger *slog.Logger, maxUploadBytes int64, opts ...Option) *Handler {
	h := &Handler{service: service, jobs: runner, logger: logger, maxUploadBytes: maxUploadBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the document routes. All of them require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleUpload)
	r.Get("/documents", h.HandleList)
	r.Get("/documents/history", h.HandleHistory)
	r.Get("/documents/pending", h.HandlePending)
	r.Get("/documents/{id}", h.HandleGet)
	r.Get("/documents/{id}/events", h.HandleEvents)
	r.Post("/documents/{id}/verify", h.HandleVerify)
	r.Get("/jobs/{id}", h.HandleJob)
}

// HandleUpload implements POST /documents as multipart/form-data with a
// "file" part and a "document_type" field. The upload and its ledger anchor
// run as a job and 202 is returned with the URL to poll. ?async=false
// answers 201 inline when the handler allows inline ledger waits.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	data, fileName, docType, err := h.readUpload(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if !h.runInline(r) {
		jobID, err := h.jobs.Submit(ctx, jobKindUpload, userID, func(ctx context.Context) (any, error) {
			result, err := h.service.Upload(ctx, userID, data, fileName, docType)
			if err != nil {
				return nil, err
			}
			return h.uploadResponse(result), nil
		})
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		writeAccepted(w, jobID)
		return
	}

	result, err := h.service.Upload(ctx, userID, data, fileName, docType)
	if err != nil {
		h.logger.WarnContext(ctx, "document upload failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.uploadResponse(result))
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
		}
		return nil, "", "", dErrors.New(dErrors.CodeBadRequest, "expected multipart/form-data body")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", dErrors.New(dErrors.CodeInvalidInput, "file is required")
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		return nil, "", "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", "", dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file")
	}
	return data, header.Filename, r.FormValue("document_type"), nil
}

func (h *Handler) uploadResponse(result *models.UploadResult) models.UploadResponse {
	locator, err := h.service.Locator(result.Record)
	if err != nil {
		locator = ""
	}
	return models.ToUploadResponse(result, locator)
}

// HandleVerify implements POST /documents/{id}/verify.
//
// Input: { "status": "Verified" | "Rejected", "notes": "..." }
// The request returns 202 and a job to poll; the job output is the verdict
// or the reason it did not take effect. ?async=false answers inline when the
// handler allows inline ledger waits.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docID, err := domain.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}

	if !h.runInline(r) {
		jobID, err := h.jobs.Submit(ctx, jobKindVerify, userID, func(ctx context.Context) (any, error) {
			result, err := h.service.Verify(ctx, userID, docID, req.Status, req.Notes)
			if err != nil {
				return nil, err
			}
			return models.ToVerifyResponse(result), nil
		})
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		writeAccepted(w, jobID)
		return
	}

	result, err := h.service.Verify(ctx, userID, docID, req.Status, req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "document verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", docID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToVerifyResponse(result))
}

// HandleList implements GET /documents. ?q= filters by file name.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var records []*models.DocumentRecord
	if q := r.URL.Query().Get("q"); q != "" {
		records, err = h.service.Search(ctx, userID, q)
	} else {
		records, err = h.service.ListByOwner(ctx, userID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToDocumentListResponse(records))
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.History(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToDocumentListResponse(records))
}

// HandlePending implements GET /documents/pending for institutions.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.ListPending(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToDocumentListResponse(records))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docID, err := domain.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Get(ctx, userID, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := models.ToDocumentResponse(record)
	if locator, err := h.service.Locator(record); err == nil {
		resp.Locator = locator
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docID, err := domain.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.ListEvents(ctx, userID, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToEventListResponse(events))
}

// HandleJob implements GET /jobs/{id}. Only the submitter sees a job.
func (h *Handler) HandleJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	jobID, err := domain.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.jobs.Get(ctx, userID, jobID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// runInline reports whether a ledger-bound request may wait on the request
// goroutine: the client opted out with ?async=false and the handler allows it.
func (h *Handler) runInline(r *http.Request) bool {
	if !h.inlineLedger {
		return false
	}
	async, err := strconv.ParseBool(r.URL.Query().Get("async"))
	return err == nil && !async
}

func writeAccepted(w http.ResponseWriter, jobID domain.JobID) {
	httputil.WriteJSON(w, http.StatusAccepted, models.JobAcceptedResponse{
		JobID:     jobID.String(),
		Status:    string(jobs.StatusQueued),
		StatusURL: "/jobs/" + jobID.String(),
	})
}
