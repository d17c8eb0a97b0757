package document

import "context"

// Filter narrows a listing. Zero values mean "no constraint".
type Filter struct {
	UploaderID string
	SignerID   string
	Status     Status
}

// Page is an offset/limit window over a newest-first listing.
type Page struct {
	Offset int
	Limit  int
}

// Store aggregates persistence for documents and their signature records.
type Store interface {
	Documents(ctx context.Context) DocumentStore
	Signatures(ctx context.Context) SignatureStore
}

// DocumentStore persists documents.
//
// CommitSignature is the atomic tail of the signing protocol: in a single
// transaction it moves the document from pending to its signed state and
// inserts the signature record. The status flip is compare-and-swap on
// pending; if the document is no longer pending the whole commit fails
// with ErrAlreadySigned and nothing is written.
type DocumentStore interface {
	Create(ctx context.Context, d *Document) error
	Find(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, f Filter, p Page) ([]*Document, int, error)
	Update(ctx context.Context, d *Document) error
	Delete(ctx context.Context, id string) error
	CommitSignature(ctx context.Context, d *Document, sig *Signature) error
}

// SignatureStore reads immutable signature records. There is deliberately
// no insert here; records only come into existence through CommitSignature.
type SignatureStore interface {
	ListByDocument(ctx context.Context, documentID string) ([]*Signature, error)
}
