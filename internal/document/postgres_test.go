package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var docTestColumns = []string{
	"id", "title", "original_file_name", "content_url", "content_id", "uploader_id",
	"signer_id", "signer_email", "signature_fields", "status", "signed_at", "verified_at",
	"rejection_reason", "extra", "created_at", "updated_at",
}

func newMock(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestPGDocStoreFind(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(docTestColumns).AddRow(
		"d1", "NDA", "nda.pdf", "http://cdn/d1", "obj-1", "u-1",
		"s-1", "signer@example.com", []byte(`[{"type":"signature","x":1,"y":2,"width":10,"height":5,"page":1,"required":true}]`),
		"pending", nil, nil, nil, []byte(`{"category":"legal"}`), now, now,
	)
	mock.ExpectQuery(`select .* from documents where id=\$1`).WithArgs("d1").WillReturnRows(rows)

	doc, err := store.Documents(context.Background()).Find(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if doc.Status != StatusPending || doc.SignedAt != nil {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(doc.SignatureFields) != 1 || doc.SignatureFields[0].Type != FieldSignature {
		t.Fatalf("signature fields not decoded: %+v", doc.SignatureFields)
	}
	if doc.Extra["category"] != "legal" {
		t.Fatalf("extra not decoded: %+v", doc.Extra)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDocStoreFindNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(`select .* from documents where id=\$1`).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(docTestColumns))

	if _, err := store.Documents(context.Background()).Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGDocStoreCommitSignature(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	signedAt := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec(`update documents set status=\$2.*where id=\$1 and status='pending'`).
		WithArgs("d1", string(StatusSigned), sqlmock.AnyArg(), "http://cdn/d1", "obj-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into signatures`).
		WithArgs("sig-1", "d1", "s-1", "", "Sam Signer", "signer@example.com",
			signedAt, "203.0.113.7", "test", "", "", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc := &Document{
		ID: "d1", Status: StatusSigned, SignedAt: &signedAt,
		ContentURL: "http://cdn/d1", ContentID: "obj-1", UpdatedAt: now,
	}
	sig := &Signature{
		ID: "sig-1", DocumentID: "d1", SignerID: "s-1",
		SignerName: "Sam Signer", SignerEmail: "signer@example.com",
		SignedAt: signedAt, IPAddress: "203.0.113.7", UserAgent: "test", CreatedAt: now,
	}
	if err := store.Documents(context.Background()).CommitSignature(context.Background(), doc, sig); err != nil {
		t.Fatalf("CommitSignature: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDocStoreCommitSignatureLosesSwap(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`update documents set status=\$2.*where id=\$1 and status='pending'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select exists`).WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	doc := &Document{ID: "d1", Status: StatusSigned}
	err := store.Documents(context.Background()).CommitSignature(context.Background(), doc, &Signature{ID: "sig-1"})
	if !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("expected ErrAlreadySigned, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGDocStoreCommitSignatureMissingDocument(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`update documents set status=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`select exists`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	doc := &Document{ID: "ghost", Status: StatusSigned}
	err := store.Documents(context.Background()).CommitSignature(context.Background(), doc, &Signature{ID: "sig-1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGDocStoreDeleteMissing(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec(`delete from documents where id=\$1`).WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Documents(context.Background()).Delete(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
