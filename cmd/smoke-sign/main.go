package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

// End-to-end smoke client: registers an uploader and a signer, uploads a
// PDF, signs it and verifies the lifecycle against a running API.
func main() {
	base := os.Getenv("SIGNFLOW_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	suffix := time.Now().UnixNano()

	uploaderToken := register(client, base, "Smoke Uploader", fmt.Sprintf("uploader-%d@smoke.test", suffix), "uploader")
	signerEmail := fmt.Sprintf("signer-%d@smoke.test", suffix)
	signerToken := register(client, base, "Smoke Signer", signerEmail, "signer")

	docID := upload(client, base, uploaderToken, signerEmail)

	doc := getDocument(client, base, signerToken, docID)
	if doc["status"] != "pending" {
		log.Fatalf("fresh document status = %v, want pending", doc["status"])
	}

	sign(client, base, signerToken, docID, signerEmail)

	doc = getDocument(client, base, uploaderToken, docID)
	if doc["status"] != "signed" {
		log.Fatalf("signed document status = %v, want signed", doc["status"])
	}

	fmt.Printf("✅ signflow smoke test passed: document=%s\n", docID)
}

func register(client *http.Client, base, name, email, role string) string {
	payload := map[string]any{
		"name":     name,
		"email":    email,
		"password": "smoke-secret",
		"role":     role,
	}
	body := postJSON(client, base+"/v1/auth/register", "", payload, http.StatusCreated)
	token, _ := body["token"].(string)
	if token == "" {
		log.Fatalf("register %s: no token in response", email)
	}
	return token
}

func upload(client *http.Client, base, token, signerEmail string) string {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "Smoke NDA")
	_ = mw.WriteField("signer_email", signerEmail)
	part, err := mw.CreateFormFile("file", "smoke.pdf")
	if err != nil {
		log.Fatalf("multipart: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4\n% smoke test document\n%%EOF"))
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, base+"/v1/documents", &buf)
	if err != nil {
		log.Fatalf("upload request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	body := doRequest(client, req, http.StatusCreated)
	id, _ := body["id"].(string)
	if id == "" {
		log.Fatal("upload: no document id in response")
	}
	return id
}

func getDocument(client *http.Client, base, token, id string) map[string]any {
	req, err := http.NewRequest(http.MethodGet, base+"/v1/documents/"+id, nil)
	if err != nil {
		log.Fatalf("get request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return doRequest(client, req, http.StatusOK)
}

func sign(client *http.Client, base, token, id, signerEmail string) {
	payload := map[string]any{
		"signer_name":  "Smoke Signer",
		"signer_email": signerEmail,
		"signed_at":    time.Now().UTC().Format(time.RFC3339),
	}
	postJSON(client, base+"/v1/documents/"+id+"/sign", token, payload, http.StatusOK)
}

func postJSON(client *http.Client, url, token string, payload map[string]any, wantStatus int) map[string]any {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(client, req, wantStatus)
}

func doRequest(client *http.Client, req *http.Request, wantStatus int) map[string]any {
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d: %s", req.Method, req.URL.Path, resp.StatusCode, wantStatus, data)
	}
	var body map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			log.Fatalf("%s %s: decode: %v", req.Method, req.URL.Path, err)
		}
	}
	return body
}
