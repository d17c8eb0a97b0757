package document

import (
	"fmt"
	"time"
)

// Status is the document lifecycle state. Transitions run pending -> signed
// -> verified, with a rejected branch out of pending. rejected and verified
// are representable but no operation currently commits them; see DESIGN.md.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSigned   Status = "signed"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a raw status value against the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusPending, StatusSigned, StatusVerified, StatusRejected:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidFormat, raw)
}

// Final reports whether the document content and assignment are frozen.
// Signed and verified documents can no longer be edited or deleted.
func (s Status) Final() bool {
	return s == StatusSigned || s == StatusVerified
}

// SignatureField places one input box on a page of the PDF. Layout metadata
// only; coordinates are not checked against the actual page geometry.
type SignatureField struct {
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Page     int     `json:"page"`
	Required bool    `json:"required"`
}

// Field types form a closed set.
const (
	FieldSignature = "signature"
	FieldName      = "name"
	FieldEmail     = "email"
	FieldDate      = "date"
)

// Document is the central entity of the signing workflow.
//
// SignerEmail is deliberately denormalized for lookup; it must always change
// together with SignerID (the update path enforces this).
type Document struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	OriginalFileName string           `json:"original_file_name"`
	ContentURL       string           `json:"content_url"`
	ContentID        string           `json:"content_id"`
	UploaderID       string           `json:"uploader_id"`
	SignerID         string           `json:"signer_id"`
	SignerEmail      string           `json:"signer_email"`
	SignatureFields  []SignatureField `json:"signature_fields"`
	Status           Status           `json:"status"`
	SignedAt         *time.Time       `json:"signed_at,omitempty"`
	VerifiedAt       *time.Time       `json:"verified_at,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
	Extra            map[string]any   `json:"extra,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Signature is the immutable audit record created once per successful
// signing. It is never mutated after the commit.
type Signature struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"document_id"`
	SignerID        string    `json:"signer_id"`
	SignatureData   string    `json:"signature_data,omitempty"`
	SignerName      string    `json:"signer_name"`
	SignerEmail     string    `json:"signer_email"`
	SignedAt        time.Time `json:"signed_at"`
	IPAddress       string    `json:"ip_address,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	SignedContentURL string   `json:"signed_content_url,omitempty"`
	SignedContentID  string   `json:"signed_content_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
