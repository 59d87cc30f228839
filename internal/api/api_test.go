package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/munin/internal/testutil"
)

func testRouter(t *testing.T, authToken string) http.Handler {
	t.Helper()
	svc, _, _ := testutil.TestService(t)
	return NewRouter(NewHandler(svc), RouterOptions{
		AuthEnabled: authToken != "",
		AuthToken:   authToken,
	})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestMindCreateAndGet(t *testing.T) {
	router := testRouter(t, "")

	w := do(t, router, http.MethodPost, "/mind/documents", map[string]any{
		"content":  "remembered forever",
		"metadata": map[string]any{"origin": "api-test"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var created DocumentResponse
	decode(t, w, &created)
	if created.Collection != "mind_default" {
		t.Errorf("collection = %q, want mind_default", created.Collection)
	}
	if created.Message != "Mind document created successfully" {
		t.Errorf("message = %q", created.Message)
	}

	w = do(t, router, http.MethodGet, "/mind/documents/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var got DocumentResponse
	decode(t, w, &got)
	if got.Content != "remembered forever" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Metadata["origin"] != "api-test" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestMindCreateValidation(t *testing.T) {
	router := testRouter(t, "")

	// Missing metadata.
	w := do(t, router, http.MethodPost, "/mind/documents", map[string]any{
		"content": "no metadata",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing metadata = %d, want 400", w.Code)
	}

	// Missing content.
	w = do(t, router, http.MethodPost, "/mind/documents", map[string]any{
		"metadata": map[string]any{"k": "v"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing content = %d, want 400", w.Code)
	}
}

func TestMindUpdate(t *testing.T) {
	router := testRouter(t, "")

	w := do(t, router, http.MethodPost, "/mind/documents", map[string]any{
		"content":  "v1",
		"metadata": map[string]any{"k": "v"},
	})
	var created DocumentResponse
	decode(t, w, &created)

	w = do(t, router, http.MethodPost, "/mind/documents/"+created.ID, map[string]any{
		"content":  "v2",
		"metadata": map[string]any{"k": "v"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var updated DocumentResponse
	decode(t, w, &updated)
	if updated.Content != "v2" {
		t.Errorf("content = %q", updated.Content)
	}
	if updated.Message != "Mind document updated successfully" {
		t.Errorf("message = %q", updated.Message)
	}

	// Collection change is rejected in the strict dialect.
	w = do(t, router, http.MethodPost, "/mind/documents/"+created.ID, map[string]any{
		"collection": "elsewhere",
		"content":    "v3",
		"metadata":   map[string]any{"k": "v"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("collection change = %d, want 400", w.Code)
	}
}

func TestMindDelete(t *testing.T) {
	router := testRouter(t, "")

	w := do(t, router, http.MethodPost, "/mind/documents", map[string]any{
		"content":  "bye",
		"metadata": map[string]any{"k": "v"},
	})
	var created DocumentResponse
	decode(t, w, &created)

	w = do(t, router, http.MethodDelete, "/mind/documents/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	var deleted DeleteResponse
	decode(t, w, &deleted)
	if deleted.ID != created.ID {
		t.Errorf("deleted id = %q", deleted.ID)
	}

	w = do(t, router, http.MethodGet, "/mind/documents/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestMindQuery(t *testing.T) {
	router := testRouter(t, "")

	for i := 0; i < 3; i++ {
		w := do(t, router, http.MethodPost, "/mind/documents", map[string]any{
			"content":  fmt.Sprintf("searchable text %d", i),
			"metadata": map[string]any{"n": fmt.Sprint(i)},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create %d = %d", i, w.Code)
		}
	}

	w := do(t, router, http.MethodPost, "/mind/documents/mind_default/query", map[string]any{
		"query_text": "searchable text 1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("query = %d, body = %s", w.Code, w.Body.String())
	}
	var resp QueryResponse
	decode(t, w, &resp)
	if resp.Count == 0 || len(resp.Matches) != resp.Count {
		t.Fatalf("count = %d, matches = %d", resp.Count, len(resp.Matches))
	}
	if resp.Collection != "mind_default" {
		t.Errorf("collection = %q", resp.Collection)
	}
	for i := 1; i < len(resp.Matches); i++ {
		if resp.Matches[i].SimilarityScore > resp.Matches[i-1].SimilarityScore {
			t.Error("matches not ranked")
		}
	}
}

func TestMindQueryValidation(t *testing.T) {
	router := testRouter(t, "")

	w := do(t, router, http.MethodPost, "/mind/documents/mind_default/query", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query_text = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/mind/documents/mind_default/query", map[string]any{
		"query_text": "q",
		"limit":      101,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit 101 = %d, want 400", w.Code)
	}
}

func TestMindList(t *testing.T) {
	router := testRouter(t, "")

	for i := 0; i < 3; i++ {
		do(t, router, http.MethodPost, "/mind/documents", map[string]any{
			"content":  fmt.Sprintf("doc %d", i),
			"metadata": map[string]any{"k": "v"},
		})
	}

	w := do(t, router, http.MethodGet, "/mind/documents?collection=mind_default&limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp ListResponse
	decode(t, w, &resp)
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
}

func TestLegacyDialectAndAliases(t *testing.T) {
	router := testRouter(t, "")

	for _, prefix := range []string{"/documents", "/vectorstore/documents", "/api/vectorstore/documents"} {
		w := do(t, router, http.MethodPost, prefix, map[string]any{
			"content": "content without metadata is fine here",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create via %s = %d, body = %s", prefix, w.Code, w.Body.String())
		}
		var created DocumentResponse
		decode(t, w, &created)
		if created.Collection != "default" {
			t.Errorf("%s: collection = %q, want default", prefix, created.Collection)
		}
		if created.Message != "Document created successfully" {
			t.Errorf("%s: message = %q", prefix, created.Message)
		}

		// The document is reachable through every alias.
		w = do(t, router, http.MethodGet, "/documents/"+created.ID, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: get via /documents = %d", prefix, w.Code)
		}
	}
}

func TestLegacyRejectsEmptyDocument(t *testing.T) {
	router := testRouter(t, "")

	w := do(t, router, http.MethodPost, "/documents", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty document = %d, want 400", w.Code)
	}
}

func TestCreateConflict(t *testing.T) {
	router := testRouter(t, "")

	body := map[string]any{
		"id":       "docfixed99",
		"content":  "pinned id",
		"metadata": map[string]any{"k": "v"},
	}
	w := do(t, router, http.MethodPost, "/mind/documents", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/mind/documents", body)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	router := testRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/mind/documents", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid json = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_TokenMode(t *testing.T) {
	router := testRouter(t, "secret123")

	// Missing token.
	w := do(t, router, http.MethodGet, "/mind/documents", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	// Wrong token.
	req := httptest.NewRequest(http.MethodGet, "/mind/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", rec.Code)
	}

	// Valid token.
	req = httptest.NewRequest(http.MethodGet, "/mind/documents", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router := testRouter(t, "")

	w := do(t, router, http.MethodGet, "/documents", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}
