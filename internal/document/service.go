package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signflow.org/internal/auth"
	"signflow.org/internal/audit"
	"signflow.org/internal/blob"
	"signflow.org/internal/ids"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Directory resolves signer assignments. Satisfied by *auth.Service.
type Directory interface {
	FindActiveSigner(ctx context.Context, email string) (*auth.User, error)
}

// Service implements the document lifecycle on top of a Store, an object
// store for PDF content and a user directory for signer resolution.
type Service struct {
	store   Store
	blobs   blob.Store
	signers Directory
	now     func() time.Time
}

// ServiceOption configures optional Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, blobs blob.Store, signers Directory, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		blobs:   blobs,
		signers: signers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries everything needed to register a new document.
// SignatureFields arrives serialized because it travels as a multipart
// form value next to the file part.
type CreateInput struct {
	Title           string
	SignerEmail     string
	FileName        string
	Content         []byte
	ContentType     string
	SignatureFields string
	Extra           map[string]any
}

// Create registers a new pending document. The signer assignment is
// resolved before any content is written, so a bad assignment never
// leaves an orphaned object behind.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (*Document, error) {
	if p.Role != auth.RoleUploader {
		return nil, fmt.Errorf("%w: only uploaders may create documents", ErrForbidden)
	}
	title := strings.TrimSpace(in.Title)
	email := strings.ToLower(strings.TrimSpace(in.SignerEmail))
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: signer email is required", ErrValidation)
	}
	if len(in.Content) == 0 {
		return nil, fmt.Errorf("%w: document content is required", ErrValidation)
	}
	fields, err := ParseSignatureFields(in.SignatureFields)
	if err != nil {
		return nil, err
	}
	signer, err := s.signers.FindActiveSigner(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignerNotFound, email)
	}

	obj, err := s.blobs.Put(ctx, in.Content, in.ContentType, in.FileName)
	if err != nil {
		return nil, fmt.Errorf("%w: upload content: %v", ErrStorage, err)
	}

	now := s.now().UTC()
	doc := &Document{
		ID:               ids.New(),
		Title:            title,
		OriginalFileName: in.FileName,
		ContentURL:       obj.URL,
		ContentID:        obj.ID,
		UploaderID:       p.ID,
		SignerID:         signer.ID,
		SignerEmail:      signer.Email,
		SignatureFields:  fields,
		Status:           StatusPending,
		Extra:            MergeExtra(nil, in.Extra),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Documents(ctx).Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get returns a single document, enforcing the view policy.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Document, error) {
	doc, err := s.store.Documents(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(p, doc) {
		return nil, ErrForbidden
	}
	return doc, nil
}

// UpdateInput is a partial patch; nil pointers leave the field unchanged.
type UpdateInput struct {
	Title           *string
	SignerEmail     *string
	SignatureFields *string
	Extra           map[string]any
}

// Update edits a pending document. Validation of every supplied part runs
// before any mutation, so a rejected patch changes nothing. Reassigning
// the signer rewrites SignerID and SignerEmail together.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in UpdateInput) (*Document, error) {
	doc, err := s.store.Documents(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status.Final() {
		return nil, fmt.Errorf("%w: document is %s", ErrInvalidState, doc.Status)
	}
	if p.ID != doc.UploaderID {
		return nil, ErrForbidden
	}

	var fields []SignatureField
	if in.SignatureFields != nil {
		fields, err = ParseSignatureFields(*in.SignatureFields)
		if err != nil {
			return nil, err
		}
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		doc.Title = title
	}
	if in.SignerEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*in.SignerEmail))
		if email == "" {
			return nil, fmt.Errorf("%w: signer email cannot be empty", ErrValidation)
		}
		if email != doc.SignerEmail {
			signer, err := s.signers.FindActiveSigner(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrSignerNotFound, email)
			}
			doc.SignerID = signer.ID
			doc.SignerEmail = signer.Email
		}
	}
	if in.SignatureFields != nil {
		doc.SignatureFields = fields
	}
	if in.Extra != nil {
		doc.Extra = MergeExtra(doc.Extra, in.Extra)
	}
	doc.UpdatedAt = s.now().UTC()

	if err := s.store.Documents(ctx).Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a pending document and its stored content. Content
// removal runs first; if the object store refuses, the record stays so
// the operation can be retried without leaking the blob.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	doc, err := s.store.Documents(ctx).Find(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status.Final() {
		return fmt.Errorf("%w: document is %s", ErrInvalidState, doc.Status)
	}
	if p.ID != doc.UploaderID {
		return ErrForbidden
	}
	if doc.ContentID != "" {
		if err := s.blobs.Delete(ctx, doc.ContentID); err != nil && err != blob.ErrNotFound {
			return fmt.Errorf("%w: delete content: %v", ErrStorage, err)
		}
	}
	return s.store.Documents(ctx).Delete(ctx, id)
}

// ListInput selects a page of the caller's documents.
type ListInput struct {
	Status string
	Page   int
	Limit  int
}

// ListResult is one page of documents, newest first.
type ListResult struct {
	Items []*Document `json:"items"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Total int         `json:"total"`
	Pages int         `json:"pages"`
}

// List returns the caller's documents: uploads for uploaders, assignments
// for signers. The role decides the filter; callers cannot widen it.
func (s *Service) List(ctx context.Context, p auth.Principal, in ListInput) (ListResult, error) {
	var filter Filter
	switch p.Role {
	case auth.RoleUploader:
		filter.UploaderID = p.ID
	case auth.RoleSigner:
		filter.SignerID = p.ID
	default:
		return ListResult{}, ErrForbidden
	}
	if raw := strings.TrimSpace(in.Status); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			return ListResult{}, err
		}
		filter.Status = status
	}

	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := s.store.Documents(ctx).List(ctx, filter, Page{Offset: (page - 1) * limit, Limit: limit})
	if err != nil {
		return ListResult{}, err
	}
	pages := (total + limit - 1) / limit
	return ListResult{Items: items, Page: page, Limit: limit, Total: total, Pages: pages}, nil
}

// ListSignatures returns the immutable signature records of a document,
// gated by the same policy as reading the document itself.
func (s *Service) ListSignatures(ctx context.Context, p auth.Principal, documentID string) ([]*Signature, error) {
	doc, err := s.store.Documents(ctx).Find(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !CanView(p, doc) {
		return nil, ErrForbidden
	}
	return s.store.Signatures(ctx).ListByDocument(ctx, documentID)
}

func (s *Service) auditCleanupFailure(ctx context.Context, documentID, contentID string, err error) {
	_ = audit.LogEvent(ctx, "document.content.cleanup_failed", map[string]any{
		"document_id": documentID,
		"content_id":  contentID,
		"error":       err.Error(),
	})
}
