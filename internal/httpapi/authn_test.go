package httpapi

import (
	"net/http"
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Fatalf("expected error for empty header")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatalf("expected error for wrong scheme")
	}
	if _, err := extractBearerToken("Bearer "); err == nil {
		t.Fatalf("expected error for empty token")
	}
	token, err := extractBearerToken("bearer abc.def.ghi")
	if err != nil {
		t.Fatalf("case-insensitive scheme should parse: %v", err)
	}
	if token != "abc.def.ghi" {
		t.Fatalf("unexpected token: %q", token)
	}
}

func TestWithAuthRejectsGarbageToken(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	resp := api.post("/v1/access/check", map[string]any{
		"case_id":    "case-1",
		"capability": "read",
	}, map[string]string{"Authorization": "Bearer not-a-jwt"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPublicPathsSkipAuth(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := api.get(path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			t.Fatalf("path %s should not require auth", path)
		}
	}
}
