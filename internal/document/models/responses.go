package models

import "time"

type DocumentResponse struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	ContentID        string     `json:"content_id"`
	DocumentType     string     `json:"document_type"`
	FileName         string     `json:"file_name"`
	FileSize         int64      `json:"file_size"`
	Digest           string     `json:"digest"`
	Status           string     `json:"status"`
	Provisional      bool       `json:"provisional"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	VerifiedBy       string     `json:"verified_by,omitempty"`
	VerificationDate *time.Time `json:"verification_date,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	LedgerIndex      string     `json:"ledger_index"`
	AnchorTxHash     string     `json:"anchor_tx_hash,omitempty"`
	AnchorAddress    string     `json:"anchor_address,omitempty"`
	ChainIndex       *uint64    `json:"chain_index,omitempty"`
	TxHash           string     `json:"tx_hash,omitempty"`
	Locator          string     `json:"locator,omitempty"`
}

func ToDocumentResponse(d *DocumentRecord) DocumentResponse {
	resp := DocumentResponse{
		ID:               d.ID.String(),
		OwnerID:          d.OwnerID.String(),
		ContentID:        d.ContentID,
		DocumentType:     d.DocumentType.String(),
		FileName:         d.FileName,
		FileSize:         d.FileSize,
		Digest:           d.Digest,
		Status:           string(d.Status),
		Provisional:      d.IsProvisional(),
		UploadedAt:       d.UploadedAt,
		VerificationDate: d.VerificationDate,
		Notes:            d.Notes,
		LedgerIndex:      d.LedgerIndex.String(),
		AnchorTxHash:     d.AnchorTxHash,
		ChainIndex:       d.ChainIndex,
		TxHash:           d.TxHash,
	}
	if d.VerifiedBy != nil {
		resp.VerifiedBy = d.VerifiedBy.String()
	}
	if !d.AnchorAddress.IsZero() {
		resp.AnchorAddress = d.AnchorAddress.Checksum()
	}
	return resp
}

type AdvisoryResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

type UploadResponse struct {
	Document DocumentResponse  `json:"document"`
	Advisory *AdvisoryResponse `json:"advisory,omitempty"`
}

func ToUploadResponse(r *UploadResult, locator string) UploadResponse {
	resp := UploadResponse{Document: ToDocumentResponse(r.Record)}
	resp.Document.Locator = locator
	if r.Advisory != nil {
		resp.Advisory = &AdvisoryResponse{Code: r.Advisory.Code, Message: r.Advisory.Message, Cause: r.Advisory.Cause}
	}
	return resp
}

type EventResponse struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	VerifierID string    `json:"verifier_id"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	TxHash     string    `json:"tx_hash"`
	CreatedAt  time.Time `json:"created_at"`
}

func ToEventResponse(e *VerificationEvent) EventResponse {
	return EventResponse{
		ID:         e.ID.String(),
		DocumentID: e.DocumentID.String(),
		VerifierID: e.VerifierID.String(),
		Status:     string(e.Status),
		Notes:      e.Notes,
		TxHash:     e.TxHash,
		CreatedAt:  e.CreatedAt,
	}
}

type VerifyResponse struct {
	Document DocumentResponse `json:"document"`
	Event    EventResponse    `json:"event"`
}

func ToVerifyResponse(r *VerifyResult) VerifyResponse {
	return VerifyResponse{Document: ToDocumentResponse(r.Record), Event: ToEventResponse(r.Event)}
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int                `json:"total"`
}

func ToDocumentListResponse(records []*DocumentRecord) DocumentListResponse {
	docs := make([]DocumentResponse, 0, len(records))
	for _, r := range records {
		docs = append(docs, ToDocumentResponse(r))
	}
	return DocumentListResponse{Documents: docs, Total: len(docs)}
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
}

func ToEventListResponse(events []*VerificationEvent) EventListResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, ToEventResponse(e))
	}
	return EventListResponse{Events: out}
}

// JobAcceptedResponse answers an asynchronous request.
type JobAcceptedResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}
