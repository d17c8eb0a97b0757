package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signflow.org/internal/auth"
	"signflow.org/internal/ids"
)

// SignInput carries the signer's attestation and, optionally, a signed
// rendition of the PDF that replaces the stored content.
type SignInput struct {
	SignerName    string
	SignerEmail   string
	SignedAt      time.Time
	SignatureData string
	NewContent    []byte
	ContentType   string
	FileName      string
	IPAddress     string
	UserAgent     string
}

// Sign executes the signing protocol:
//
//  1. Only the assigned signer may proceed; a document already out of
//     pending fails with ErrAlreadySigned.
//  2. If a signed rendition is supplied, the old object is deleted
//     best-effort (a failure is logged and ignored) and the new one is
//     uploaded; an upload failure aborts before any record changes.
//  3. The status flip to signed and the signature insert commit together
//     in one store transaction, compare-and-swap on pending. A concurrent
//     signer loses the swap and gets ErrAlreadySigned; at most one
//     signature record ever exists per document.
//
// An upload that succeeds before a lost swap leaves an orphaned object.
// That is the accepted cost of keeping the commit itself atomic.
func (s *Service) Sign(ctx context.Context, p auth.Principal, id string, in SignInput) (*Document, *Signature, error) {
	doc, err := s.store.Documents(ctx).Find(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p.ID != doc.SignerID {
		return nil, nil, fmt.Errorf("%w: only the assigned signer may sign", ErrForbidden)
	}
	if doc.Status != StatusPending {
		return nil, nil, fmt.Errorf("%w: document is %s", ErrAlreadySigned, doc.Status)
	}

	name := strings.TrimSpace(in.SignerName)
	email := strings.ToLower(strings.TrimSpace(in.SignerEmail))
	switch {
	case name == "":
		return nil, nil, fmt.Errorf("%w: signer name is required", ErrValidation)
	case email == "":
		return nil, nil, fmt.Errorf("%w: signer email is required", ErrValidation)
	case in.SignedAt.IsZero():
		return nil, nil, fmt.Errorf("%w: signing timestamp is required", ErrValidation)
	}

	now := s.now().UTC()
	signedAt := in.SignedAt.UTC()
	signed := *doc
	signed.Status = StatusSigned
	signed.SignedAt = &signedAt
	signed.UpdatedAt = now

	sig := &Signature{
		ID:            ids.New(),
		DocumentID:    doc.ID,
		SignerID:      p.ID,
		SignatureData: in.SignatureData,
		SignerName:    name,
		SignerEmail:   email,
		SignedAt:      signedAt,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		CreatedAt:     now,
	}

	if len(in.NewContent) > 0 {
		if doc.ContentID != "" {
			if err := s.blobs.Delete(ctx, doc.ContentID); err != nil {
				s.auditCleanupFailure(ctx, doc.ID, doc.ContentID, err)
			}
		}
		obj, err := s.blobs.Put(ctx, in.NewContent, in.ContentType, in.FileName)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: upload signed content: %v", ErrStorage, err)
		}
		signed.ContentURL = obj.URL
		signed.ContentID = obj.ID
		sig.SignedContentURL = obj.URL
		sig.SignedContentID = obj.ID
	}

	if err := s.store.Documents(ctx).CommitSignature(ctx, &signed, sig); err != nil {
		return nil, nil, err
	}
	return &signed, sig, nil
}
