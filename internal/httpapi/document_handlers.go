package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"signflow.org/internal/audit"
	"signflow.org/internal/document"
	"signflow.org/internal/obs"
	"signflow.org/internal/stream"
)

// Uploads are PDF only and capped at 10 MiB.
const (
	maxUploadBytes   = 10 << 20
	maxMultipartForm = maxUploadBytes + (1 << 20)
)

var pdfMagic = []byte("%PDF-")

type userSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// documentView is the read model: the document plus resolved uploader and
// signer accounts. Resolution happens at read time so account renames show
// up without touching stored documents.
type documentView struct {
	*document.Document
	Uploader *userSummary `json:"uploader,omitempty"`
	Signer   *userSummary `json:"signer,omitempty"`
}

type documentListResponse struct {
	Items []documentView `json:"items"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int            `json:"total"`
	Pages int            `json:"pages"`
}

type documentUpdateRequest struct {
	Title           *string        `json:"title"`
	SignerEmail     *string        `json:"signer_email"`
	SignatureFields *string        `json:"signature_fields"`
	Extra           map[string]any `json:"extra"`
}

type signRequest struct {
	SignerName    string    `json:"signer_name"`
	SignerEmail   string    `json:"signer_email"`
	SignedAt      time.Time `json:"signed_at"`
	SignatureData string    `json:"signature_data"`
	SignedContent string    `json:"signed_content"`
	ContentType   string    `json:"content_type"`
	FileName      string    `json:"file_name"`
}

type signResponse struct {
	Document  documentView        `json:"document"`
	Signature *document.Signature `json:"signature"`
}

func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createDocument(w, r)
	case http.MethodGet:
		a.listDocuments(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, found := strings.CutSuffix(path, "/sign"); found && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.signDocument(w, r, id)
		return
	}
	if id, found := strings.CutSuffix(path, "/signatures"); found && id != "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listSignatures(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getDocument(w, r, path)
	case http.MethodPatch:
		a.updateDocument(w, r, path)
	case http.MethodDelete:
		a.deleteDocument(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartForm)
	if err := r.ParseMultipartForm(maxMultipartForm); err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart form expected")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "could not read file")
		return
	}
	if len(content) > maxUploadBytes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds the 10 MiB limit")
		return
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		writeError(w, r, http.StatusBadRequest, "only PDF files are accepted")
		return
	}

	var extra map[string]any
	if raw := strings.TrimSpace(r.FormValue("extra")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			writeError(w, r, http.StatusBadRequest, "extra must be a JSON object")
			return
		}
	}

	doc, err := a.documents.Create(r.Context(), p, document.CreateInput{
		Title:           r.FormValue("title"),
		SignerEmail:     r.FormValue("signer_email"),
		FileName:        header.Filename,
		Content:         content,
		ContentType:     "application/pdf",
		SignatureFields: r.FormValue("signature_fields"),
		Extra:           extra,
	})
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}

	obs.DocumentUploaded()
	_ = audit.LogEvent(r.Context(), "document.created", map[string]any{
		"document_id":  doc.ID,
		"title":        doc.Title,
		"signer_email": doc.SignerEmail,
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:       stream.EventDocumentUploaded,
			DocumentID: doc.ID,
			Title:      doc.Title,
			Status:     string(doc.Status),
			UploaderID: doc.UploaderID,
			SignerID:   doc.SignerID,
		})
	}

	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, a.viewOf(r.Context(), doc))
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	page, err := parseBoundedInt(r.URL.Query().Get("page"), 1, 1, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	res, err := a.documents.List(r.Context(), p, document.ListInput{
		Status: r.URL.Query().Get("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}

	resp := documentListResponse{
		Items: make([]documentView, 0, len(res.Items)),
		Page:  res.Page,
		Limit: res.Limit,
		Total: res.Total,
		Pages: res.Pages,
	}
	users := map[string]*userSummary{}
	for _, doc := range res.Items {
		resp.Items = append(resp.Items, documentView{
			Document: doc,
			Uploader: a.cachedSummary(r.Context(), users, doc.UploaderID),
			Signer:   a.cachedSummary(r.Context(), users, doc.SignerID),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	doc, err := a.documents.Get(r.Context(), p, id)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.viewOf(r.Context(), doc))
}

func (a *API) updateDocument(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	var req documentUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := a.documents.Update(r.Context(), p, id, document.UpdateInput{
		Title:           req.Title,
		SignerEmail:     req.SignerEmail,
		SignatureFields: req.SignatureFields,
		Extra:           req.Extra,
	})
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "document.updated", map[string]any{
		"document_id": doc.ID,
	})
	writeJSON(w, http.StatusOK, a.viewOf(r.Context(), doc))
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	if err := a.documents.Delete(r.Context(), p, id); err != nil {
		handleDocumentError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "document.deleted", map[string]any{
		"document_id": id,
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:       stream.EventDocumentDeleted,
			DocumentID: id,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) signDocument(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	var req signRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var newContent []byte
	if req.SignedContent != "" {
		var err error
		newContent, err = base64.StdEncoding.DecodeString(req.SignedContent)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "signed_content must be base64")
			return
		}
		if len(newContent) > maxUploadBytes {
			writeError(w, r, http.StatusRequestEntityTooLarge, "signed content exceeds the 10 MiB limit")
			return
		}
	}

	doc, sig, err := a.documents.Sign(r.Context(), p, id, document.SignInput{
		SignerName:    req.SignerName,
		SignerEmail:   req.SignerEmail,
		SignedAt:      req.SignedAt,
		SignatureData: req.SignatureData,
		NewContent:    newContent,
		ContentType:   req.ContentType,
		FileName:      req.FileName,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}

	obs.DocumentSigned()
	_ = audit.LogEvent(r.Context(), "document.signed", map[string]any{
		"document_id":  doc.ID,
		"signature_id": sig.ID,
		"signer_email": sig.SignerEmail,
	})
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:       stream.EventDocumentSigned,
			DocumentID: doc.ID,
			Title:      doc.Title,
			Status:     string(doc.Status),
			UploaderID: doc.UploaderID,
			SignerID:   doc.SignerID,
		})
	}

	writeJSON(w, http.StatusOK, signResponse{
		Document:  a.viewOf(r.Context(), doc),
		Signature: sig,
	})
}

func (a *API) listSignatures(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	sigs, err := a.documents.ListSignatures(r.Context(), p, id)
	if err != nil {
		handleDocumentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sigs})
}

func (a *API) viewOf(ctx context.Context, doc *document.Document) documentView {
	return documentView{
		Document: doc,
		Uploader: a.summaryOf(ctx, doc.UploaderID),
		Signer:   a.summaryOf(ctx, doc.SignerID),
	}
}

func (a *API) summaryOf(ctx context.Context, userID string) *userSummary {
	if userID == "" {
		return nil
	}
	user, err := a.auth.GetUser(ctx, userID)
	if err != nil {
		// Deleted accounts leave dangling references; the document stays
		// readable without the summary.
		return nil
	}
	return &userSummary{ID: user.ID, Name: user.Name, Email: user.Email}
}

func (a *API) cachedSummary(ctx context.Context, cache map[string]*userSummary, userID string) *userSummary {
	if userID == "" {
		return nil
	}
	if s, ok := cache[userID]; ok {
		return s
	}
	s := a.summaryOf(ctx, userID)
	cache[userID] = s
	return s
}

func handleDocumentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, document.ErrValidation),
		errors.Is(err, document.ErrInvalidFormat),
		errors.Is(err, document.ErrSignerNotFound):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, document.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, document.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, document.ErrInvalidState), errors.Is(err, document.ErrAlreadySigned):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, document.ErrStorage):
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
