package httpapi

import "testing"

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"case insensitive scheme", "bearer abc", "abc", false},
		{"padded", "  Bearer   abc  ", "abc", false},
		{"empty", "", "", true},
		{"wrong scheme", "Basic abc", "", true},
		{"scheme only", "Bearer ", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/healthz", "/readyz", "/metrics", "/v1/auth/register", "/v1/auth/login", "/v1/info", "/"}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Errorf("%s must be public", p)
		}
	}
	private := []string{"/v1/documents", "/v1/documents/abc", "/v1/users", "/v1/stream", "/v1/auth/profile"}
	for _, p := range private {
		if isPublicPath(p) {
			t.Errorf("%s must require authentication", p)
		}
	}
}
