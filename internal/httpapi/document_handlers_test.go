package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"signflow.org/internal/auth"
)

var pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF")

func uploadFields(overrides map[string]string) map[string]string {
	fields := map[string]string{
		"title":        "Mutual NDA",
		"signer_email": "sam@example.com",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return fields
}

func TestDocumentLifecycleFlow(t *testing.T) {
	api := newTestAPI(t)
	uploaderHdr, uploaderID := api.register("Ada Uploader", "ada@example.com", auth.RoleUploader)
	signerHdr, signerID := api.register("Sam Signer", "sam@example.com", auth.RoleSigner)

	// Upload.
	resp := api.upload(uploaderHdr, uploadFields(map[string]string{
		"signature_fields": `[{"type":"signature","x":40,"y":600,"width":160,"height":48,"page":1}]`,
		"extra":            `{"category":"legal","ignored_key":"x"}`,
	}), "nda.pdf", pdfContent)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") == "" {
		t.Fatal("expected Location header")
	}
	created := decode[map[string]any](t, resp)
	docID := created["id"].(string)
	if created["status"] != "pending" {
		t.Fatalf("status = %v, want pending", created["status"])
	}
	extra := created["extra"].(map[string]any)
	if _, ok := extra["ignored_key"]; ok {
		t.Fatal("unlisted extra key must be dropped")
	}
	uploader := created["uploader"].(map[string]any)
	signer := created["signer"].(map[string]any)
	if uploader["id"] != uploaderID || signer["id"] != signerID {
		t.Fatalf("uploader/signer not resolved at read time: %v / %v", uploader, signer)
	}

	// Both parties can read; a stranger cannot.
	strangerHdr, _ := api.register("Eve Signer", "eve@example.com", auth.RoleSigner)
	for name, hdr := range map[string]map[string]string{"uploader": uploaderHdr, "signer": signerHdr} {
		resp = api.get("/v1/documents/"+docID, nil, hdr)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s read status: %d", name, resp.StatusCode)
		}
	}
	resp = api.get("/v1/documents/"+docID, nil, strangerHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger read status: %d, want 403", resp.StatusCode)
	}

	// Update title while pending.
	resp = api.do(http.MethodPatch, "/v1/documents/"+docID, map[string]any{
		"title": "Mutual NDA v2",
	}, uploaderHdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status: %d", resp.StatusCode)
	}
	updated := decode[map[string]any](t, resp)
	if updated["title"] != "Mutual NDA v2" {
		t.Fatalf("title = %v", updated["title"])
	}

	// Sign with a replacement rendition.
	resp = api.post("/v1/documents/"+docID+"/sign", map[string]any{
		"signer_name":    "Sam Signer",
		"signer_email":   "sam@example.com",
		"signed_at":      time.Now().UTC().Format(time.RFC3339),
		"signature_data": "data:image/png;base64,iVBOR",
		"signed_content": base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 signed")),
		"content_type":   "application/pdf",
		"file_name":      "nda-signed.pdf",
	}, signerHdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign status: %d", resp.StatusCode)
	}
	signedPayload := decode[map[string]any](t, resp)
	signedDoc := signedPayload["document"].(map[string]any)
	signature := signedPayload["signature"].(map[string]any)
	if signedDoc["status"] != "signed" {
		t.Fatalf("status = %v, want signed", signedDoc["status"])
	}
	if signature["ip_address"] == "" || signature["user_agent"] == "" {
		t.Fatal("request context must be captured on the signature")
	}
	if signedDoc["content_id"] == created["content_id"] {
		t.Fatal("content must point at the signed rendition")
	}

	// Second signing attempt conflicts.
	resp = api.post("/v1/documents/"+docID+"/sign", map[string]any{
		"signer_name":  "Sam Signer",
		"signer_email": "sam@example.com",
		"signed_at":    time.Now().UTC().Format(time.RFC3339),
	}, signerHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double sign status: %d, want 409", resp.StatusCode)
	}

	// Signature records are readable by both parties.
	resp = api.get("/v1/documents/"+docID+"/signatures", nil, uploaderHdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signatures status: %d", resp.StatusCode)
	}
	records := decode[map[string]any](t, resp)
	if len(records["items"].([]any)) != 1 {
		t.Fatalf("expected exactly one signature record, got %v", records["items"])
	}

	// Signed documents can no longer be edited or deleted.
	resp = api.do(http.MethodPatch, "/v1/documents/"+docID, map[string]any{"title": "late"}, uploaderHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("update signed status: %d, want 409", resp.StatusCode)
	}
	resp = api.do(http.MethodDelete, "/v1/documents/"+docID, nil, uploaderHdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete signed status: %d, want 409", resp.StatusCode)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	api := newTestAPI(t)
	hdr, _ := api.register("Ada Uploader", "ada@example.com", auth.RoleUploader)
	api.register("Sam Signer", "sam@example.com", auth.RoleSigner)

	resp := api.upload(hdr, uploadFields(nil), "notes.txt", []byte("plain text"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d, want 400", resp.StatusCode)
	}
	if api.blobs.Len() != 0 {
		t.Fatal("rejected upload must not store content")
	}
}

func TestUploadUnknownSigner(t *testing.T) {
	api := newTestAPI(t)
	hdr, _ := api.register("Ada Uploader", "ada@example.com", auth.RoleUploader)

	resp := api.upload(hdr, uploadFields(nil), "nda.pdf", pdfContent)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d, want 400", resp.StatusCode)
	}
	if api.blobs.Len() != 0 {
		t.Fatal("signer resolution must happen before content is stored")
	}
}

func TestUploadForbiddenForSigners(t *testing.T) {
	api := newTestAPI(t)
	hdr, _ := api.register("Sam Signer", "sam@example.com", auth.RoleSigner)

	resp := api.upload(hdr, uploadFields(nil), "nda.pdf", pdfContent)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status: %d, want 403", resp.StatusCode)
	}
}

func TestDeletePendingDocument(t *testing.T) {
	api := newTestAPI(t)
	hdr, _ := api.register("Ada Uploader", "ada@example.com", auth.RoleUploader)
	api.register("Sam Signer", "sam@example.com", auth.RoleSigner)

	resp := api.upload(hdr, uploadFields(nil), "nda.pdf", pdfContent)
	created := decode[map[string]any](t, resp)
	docID := created["id"].(string)

	resp = api.do(http.MethodDelete, "/v1/documents/"+docID, nil, hdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %d", resp.StatusCode)
	}
	if api.blobs.Len() != 0 {
		t.Fatal("stored content must be removed with the document")
	}

	resp = api.get("/v1/documents/"+docID, nil, hdr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("read after delete: %d, want 404", resp.StatusCode)
	}
}

func TestListDocumentsPagination(t *testing.T) {
	api := newTestAPI(t)
	hdr, _ := api.register("Ada Uploader", "ada@example.com", auth.RoleUploader)
	api.register("Sam Signer", "sam@example.com", auth.RoleSigner)

	for i := 0; i < 25; i++ {
		resp := api.upload(hdr, uploadFields(map[string]string{
			"title": fmt.Sprintf("Contract %02d", i),
		}), "c.pdf", pdfContent)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("upload %d status: %d", i, resp.StatusCode)
		}
	}

	resp := api.get("/v1/documents", url.Values{
		"page":  []string{"2"},
		"limit": []string{"10"},
	}, hdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %d", resp.StatusCode)
	}
	list := decode[documentListResponse](t, resp)
	if list.Total != 25 || list.Pages != 3 || list.Page != 2 {
		t.Fatalf("page meta: total=%d pages=%d page=%d", list.Total, list.Pages, list.Page)
	}
	if len(list.Items) != 10 {
		t.Fatalf("got %d items, want 10", len(list.Items))
	}
}

func TestListScopedToSignerAssignments(t *testing.T) {
	api := newTestAPI(t)
	uploaderHdr, _ := api.register("Ada Uploader", "ada@example.com", auth.RoleUploader)
	signerHdr, _ := api.register("Sam Signer", "sam@example.com", auth.RoleSigner)
	otherHdr, _ := api.register("Eve Signer", "eve@example.com", auth.RoleSigner)

	resp := api.upload(uploaderHdr, uploadFields(nil), "nda.pdf", pdfContent)
	resp.Body.Close()

	resp = api.get("/v1/documents", nil, signerHdr)
	assigned := decode[documentListResponse](t, resp)
	if assigned.Total != 1 {
		t.Fatalf("assigned signer sees %d, want 1", assigned.Total)
	}

	resp = api.get("/v1/documents", nil, otherHdr)
	unassigned := decode[documentListResponse](t, resp)
	if unassigned.Total != 0 {
		t.Fatalf("unassigned signer sees %d, want 0", unassigned.Total)
	}
}
