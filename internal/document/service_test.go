package document

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"signflow.org/internal/auth"
	"signflow.org/internal/blob"
)

type staticDirectory struct {
	signers map[string]*auth.User
}

func (d *staticDirectory) FindActiveSigner(ctx context.Context, email string) (*auth.User, error) {
	u, ok := d.signers[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return u, nil
}

type fixture struct {
	svc   *Service
	blobs *blob.InMemory
	store *InMemory

	uploader auth.Principal
	signer   auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs := blob.NewInMemory()
	store := NewInMemory()
	dir := &staticDirectory{signers: map[string]*auth.User{
		"signer@example.com": {ID: "s-1", Email: "signer@example.com", Role: auth.RoleSigner, IsActive: true},
		"other@example.com":  {ID: "s-2", Email: "other@example.com", Role: auth.RoleSigner, IsActive: true},
	}}
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return &fixture{
		svc:      NewService(store, blobs, dir, WithClock(clock)),
		blobs:    blobs,
		store:    store,
		uploader: auth.Principal{ID: "u-1", Role: auth.RoleUploader},
		signer:   auth.Principal{ID: "s-1", Role: auth.RoleSigner},
	}
}

func (f *fixture) create(t *testing.T, in CreateInput) *Document {
	t.Helper()
	if in.Title == "" {
		in.Title = "NDA"
	}
	if in.SignerEmail == "" {
		in.SignerEmail = "signer@example.com"
	}
	if in.Content == nil {
		in.Content = []byte("%PDF-1.4 test")
	}
	if in.FileName == "" {
		in.FileName = "nda.pdf"
	}
	doc, err := f.svc.Create(context.Background(), f.uploader, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return doc
}

func TestCreateDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{
		SignerEmail:     "Signer@Example.COM",
		SignatureFields: `[{"type":"signature","x":5,"y":5,"width":100,"height":30,"page":1}]`,
		Extra:           map[string]any{"category": "legal", "secret": "drop-me"},
	})

	if doc.Status != StatusPending {
		t.Errorf("status = %s, want pending", doc.Status)
	}
	if doc.SignerID != "s-1" || doc.SignerEmail != "signer@example.com" {
		t.Errorf("signer not resolved: id=%s email=%s", doc.SignerID, doc.SignerEmail)
	}
	if len(doc.SignatureFields) != 1 {
		t.Errorf("got %d signature fields, want 1", len(doc.SignatureFields))
	}
	if _, ok := doc.Extra["secret"]; ok {
		t.Error("unlisted extra key must be dropped")
	}
	if doc.ContentID == "" || doc.ContentURL == "" {
		t.Error("content reference missing")
	}
	if _, ok := f.blobs.Get(doc.ContentID); !ok {
		t.Error("content not stored")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"missing title", CreateInput{SignerEmail: "signer@example.com", Content: []byte("x")}, ErrValidation},
		{"missing signer", CreateInput{Title: "NDA", Content: []byte("x")}, ErrValidation},
		{"missing content", CreateInput{Title: "NDA", SignerEmail: "signer@example.com"}, ErrValidation},
		{"unknown signer", CreateInput{Title: "NDA", SignerEmail: "nobody@example.com", Content: []byte("x")}, ErrSignerNotFound},
		{"bad fields", CreateInput{Title: "NDA", SignerEmail: "signer@example.com", Content: []byte("x"), SignatureFields: "{"}, ErrInvalidFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, f.uploader, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if f.blobs.Len() != 0 {
		t.Errorf("rejected creates must not leave objects behind, found %d", f.blobs.Len())
	}
}

func TestCreateRequiresUploaderRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.signer, CreateInput{
		Title: "NDA", SignerEmail: "signer@example.com", Content: []byte("x"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestCreateAbortsOnStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.blobs.FailPut = true
	_, err := f.svc.Create(context.Background(), f.uploader, CreateInput{
		Title: "NDA", SignerEmail: "signer@example.com", Content: []byte("x"),
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}
	if _, _, err := f.store.Documents(context.Background()).List(context.Background(), Filter{}, Page{Limit: 1}); err != nil {
		t.Fatal(err)
	}
}

func TestGetEnforcesViewPolicy(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{})
	ctx := context.Background()

	for _, p := range []auth.Principal{f.uploader, f.signer} {
		if _, err := f.svc.Get(ctx, p, doc.ID); err != nil {
			t.Errorf("Get as %s: %v", p.ID, err)
		}
	}
	if _, err := f.svc.Get(ctx, auth.Principal{ID: "x-9", Role: auth.RoleSigner}, doc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: got %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Get(ctx, f.uploader, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: got %v, want ErrNotFound", err)
	}
}

func strptr(s string) *string { return &s }

func TestUpdateDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{Extra: map[string]any{"category": "legal"}})
	ctx := context.Background()

	updated, err := f.svc.Update(ctx, f.uploader, doc.ID, UpdateInput{
		Title:       strptr("NDA v2"),
		SignerEmail: strptr("other@example.com"),
		Extra:       map[string]any{"priority": "high", "bogus": true},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "NDA v2" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.SignerID != "s-2" || updated.SignerEmail != "other@example.com" {
		t.Errorf("signer pair not rewritten together: id=%s email=%s", updated.SignerID, updated.SignerEmail)
	}
	if updated.Extra["category"] != "legal" || updated.Extra["priority"] != "high" {
		t.Errorf("extra merge wrong: %v", updated.Extra)
	}
	if _, ok := updated.Extra["bogus"]; ok {
		t.Error("unlisted extra key must be dropped")
	}
	if !updated.UpdatedAt.After(doc.UpdatedAt) {
		t.Error("UpdatedAt must advance")
	}
}

func TestUpdateRejectedPatchChangesNothing(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{})
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.uploader, doc.ID, UpdateInput{
		Title:           strptr("new title"),
		SignatureFields: strptr("not json"),
	})
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("got %v, want ErrInvalidFormat", err)
	}
	got, err := f.svc.Get(ctx, f.uploader, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != doc.Title {
		t.Error("failed patch must not change the document")
	}
}

func TestUpdateForbiddenAndInvalidState(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{})
	ctx := context.Background()

	if _, err := f.svc.Update(ctx, f.signer, doc.ID, UpdateInput{Title: strptr("x")}); !errors.Is(err, ErrForbidden) {
		t.Errorf("signer update: got %v, want ErrForbidden", err)
	}

	if _, _, err := f.svc.Sign(ctx, f.signer, doc.ID, SignInput{
		SignerName: "Sam Signer", SignerEmail: "signer@example.com", SignedAt: time.Now(),
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := f.svc.Update(ctx, f.uploader, doc.ID, UpdateInput{Title: strptr("x")}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("update signed: got %v, want ErrInvalidState", err)
	}
	if err := f.svc.Delete(ctx, f.uploader, doc.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("delete signed: got %v, want ErrInvalidState", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{})
	ctx := context.Background()

	if err := f.svc.Delete(ctx, f.signer, doc.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("signer delete: got %v, want ErrForbidden", err)
	}
	if err := f.svc.Delete(ctx, f.uploader, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.uploader, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}
	if f.blobs.Len() != 0 {
		t.Error("stored content must be removed with the document")
	}
}

func TestDeleteAbortsWhenContentRemovalFails(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t, CreateInput{})
	ctx := context.Background()

	f.blobs.FailDelete = true
	if err := f.svc.Delete(ctx, f.uploader, doc.ID); !errors.Is(err, ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}
	if _, err := f.svc.Get(ctx, f.uploader, doc.ID); err != nil {
		t.Error("record must survive a failed content removal so the delete can be retried")
	}

	f.blobs.FailDelete = false
	if err := f.svc.Delete(ctx, f.uploader, doc.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.create(t, CreateInput{Title: fmt.Sprintf("Contract %02d", i)})
	}

	res, err := f.svc.List(ctx, f.uploader, ListInput{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 25 || res.Pages != 3 || res.Page != 2 || res.Limit != 10 {
		t.Fatalf("page meta = %+v", res)
	}
	if len(res.Items) != 10 {
		t.Fatalf("got %d items, want 10", len(res.Items))
	}
	// Newest first: page 2 starts at the 11th most recent upload.
	if res.Items[0].Title != "Contract 14" {
		t.Errorf("first item = %q, want Contract 14", res.Items[0].Title)
	}
	if res.Items[9].Title != "Contract 05" {
		t.Errorf("last item = %q, want Contract 05", res.Items[9].Title)
	}
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, CreateInput{})

	res, err := f.svc.List(ctx, f.signer, ListInput{})
	if err != nil {
		t.Fatalf("List as signer: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("signer sees %d docs, want 1", res.Total)
	}

	other := auth.Principal{ID: "s-2", Role: auth.RoleSigner}
	res, err = f.svc.List(ctx, other, ListInput{})
	if err != nil {
		t.Fatalf("List as other signer: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("unassigned signer sees %d docs, want 0", res.Total)
	}

	if _, err := f.svc.List(ctx, auth.Principal{ID: "z", Role: "admin"}, ListInput{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("unknown role: got %v, want ErrForbidden", err)
	}
}

func TestListStatusFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pendingDoc := f.create(t, CreateInput{Title: "Pending one"})
	signedDoc := f.create(t, CreateInput{Title: "Signed one"})
	if _, _, err := f.svc.Sign(ctx, f.signer, signedDoc.ID, SignInput{
		SignerName: "Sam Signer", SignerEmail: "signer@example.com", SignedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.List(ctx, f.uploader, ListInput{Status: "signed"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Items[0].ID != signedDoc.ID {
		t.Errorf("signed filter returned %+v", res)
	}

	res, err = f.svc.List(ctx, f.uploader, ListInput{Status: "pending"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Items[0].ID != pendingDoc.ID {
		t.Errorf("pending filter returned %+v", res)
	}

	if _, err := f.svc.List(ctx, f.uploader, ListInput{Status: "weird"}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("bad status: got %v, want ErrInvalidFormat", err)
	}
}
