package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/notesprefs/internal/catalog"
	"github.com/kalambet/notesprefs/internal/preference"
	"github.com/kalambet/notesprefs/internal/settings"
	"github.com/kalambet/notesprefs/internal/storage"
)

const testToken = "test-token-12345"

func newTestManager(t *testing.T) (*settings.Manager, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return settings.NewManager(catalog.Registry(), store), store
}

func setupAppHandler(t *testing.T, platform int) (http.Handler, *storage.Store) {
	t.Helper()
	mgr, store := newTestManager(t)
	handler := NewAppHandler(AppDeps{
		Manager: mgr,
		Token:   testToken,
		Caps:    preference.Capabilities{PlatformVersion: platform},
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding body %q: %v", rr.Body.String(), err)
	}
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, rr, &env)
	if env.Error.Message == "" {
		t.Errorf("error envelope has no message: %s", rr.Body.String())
	}
	return env.Error.Type
}

func TestHealth_NoAuth(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMetrics_NoAuth(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	// Touch a counter so the family is present.
	serve(h, authReq(http.MethodGet, "/preferences/sort_method", "", testToken))

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "notesprefs_preference_reads_total") {
		t.Error("metrics output missing notesprefs_preference_reads_total")
	}
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	for _, tok := range []string{"", "wrong-token"} {
		rr := serve(h, authReq(http.MethodGet, "/preferences", "", tok))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", tok, rr.Code)
		}
		if typ := errorType(t, rr); typ != "authentication_error" {
			t.Errorf("token %q: error type = %q", tok, typ)
		}
	}
}

func TestListDomains(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	rr := serve(h, authReq(http.MethodGet, "/domains", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var docs []preference.DomainDoc
	decodeBody(t, rr, &docs)
	if len(docs) != len(catalog.Domains()) {
		t.Fatalf("got %d domains, want %d", len(docs), len(catalog.Domains()))
	}
	if docs[0].Key != catalog.KeyLayoutMode {
		t.Errorf("first domain = %q, want %q", docs[0].Key, catalog.KeyLayoutMode)
	}
}

func TestListDomains_PlatformVersionQuery(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	supported := func(url string) bool {
		rr := serve(h, authReq(http.MethodGet, url, "", testToken))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", url, rr.Code)
		}
		var doc preference.DomainDoc
		decodeBody(t, rr, &doc)
		for _, o := range doc.Options {
			if o.ID == "SYSTEM" {
				return o.Supported
			}
		}
		t.Fatalf("%s: SYSTEM option missing", url)
		return false
	}

	if !supported("/domains/color_scheme") {
		t.Error("SYSTEM unsupported at server default 34")
	}
	if supported("/domains/color_scheme?platform_version=30") {
		t.Error("SYSTEM supported at platform 30")
	}

	rr := serve(h, authReq(http.MethodGet, "/domains?platform_version=abc", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad platform_version: status = %d, want 400", rr.Code)
	}
}

func TestGetDomain_Unknown(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	rr := serve(h, authReq(http.MethodGet, "/domains/no_such_domain", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if typ := errorType(t, rr); typ != "not_found" {
		t.Errorf("error type = %q", typ)
	}
}

func TestGetPreference_Default(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	rr := serve(h, authReq(http.MethodGet, "/preferences/sort_method", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sel SelectionDoc
	decodeBody(t, rr, &sel)
	if sel.Option != "MODIFIED_DESC" || sel.Stored {
		t.Errorf("selection = %+v, want default MODIFIED_DESC not stored", sel)
	}
}

func TestGetPreference_NormalizesUnknownStoredValue(t *testing.T) {
	h, store := setupAppHandler(t, 34)
	if err := store.SetPreference(t.Context(), catalog.KeySortMethod, "SHUFFLE"); err != nil {
		t.Fatal(err)
	}

	rr := serve(h, authReq(http.MethodGet, "/preferences/sort_method", "", testToken))
	var sel SelectionDoc
	decodeBody(t, rr, &sel)
	if sel.Option != "MODIFIED_DESC" || !sel.Normalized || sel.Raw != "SHUFFLE" {
		t.Errorf("selection = %+v", sel)
	}

	raw, err := store.GetPreference(t.Context(), catalog.KeySortMethod)
	if err != nil || raw != "SHUFFLE" {
		t.Errorf("stored value = %q, %v; want SHUFFLE left in place", raw, err)
	}
}

func TestSetPreference(t *testing.T) {
	h, store := setupAppHandler(t, 34)

	rr := serve(h, authReq(http.MethodPut, "/preferences/sort_method", `{"option":"TITLE_ASC"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sel SelectionDoc
	decodeBody(t, rr, &sel)
	if sel.Option != "TITLE_ASC" || !sel.Stored {
		t.Errorf("selection = %+v", sel)
	}

	raw, err := store.GetPreference(t.Context(), catalog.KeySortMethod)
	if err != nil || raw != "TITLE_ASC" {
		t.Errorf("stored = %q, %v", raw, err)
	}
}

func TestSetPreference_Value(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	rr := serve(h, authReq(http.MethodPut, "/preferences/note_deletion_time", `{"option":"WEEK"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sel SelectionDoc
	decodeBody(t, rr, &sel)
	if sel.Value == nil || *sel.Value != 7*24*3600 {
		t.Errorf("value = %v, want one week in seconds", sel.Value)
	}
}

func TestSetPreference_Errors(t *testing.T) {
	h, store := setupAppHandler(t, 30)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantType string
	}{
		{"unknown option", "/preferences/sort_method", `{"option":"SHUFFLE"}`, http.StatusBadRequest, "invalid_request_error"},
		{"unsupported at server default", "/preferences/color_scheme", `{"option":"SYSTEM"}`, http.StatusConflict, "unsupported_option"},
		{"unsupported at request version", "/preferences/color_scheme", `{"option":"SYSTEM","platform_version":29}`, http.StatusConflict, "unsupported_option"},
		{"unknown domain", "/preferences/no_such_domain", `{"option":"X"}`, http.StatusNotFound, "not_found"},
		{"empty option", "/preferences/sort_method", `{}`, http.StatusBadRequest, "invalid_request_error"},
		{"malformed body", "/preferences/sort_method", `{`, http.StatusBadRequest, "invalid_request_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodPut, tt.path, tt.body, testToken))
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if typ := errorType(t, rr); typ != tt.wantType {
				t.Errorf("error type = %q, want %q", typ, tt.wantType)
			}
		})
	}

	all, err := store.AllPreferences(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("rejected writes touched the store: %v", all)
	}
}

func TestSetPreference_RequestVersionUnlocksOption(t *testing.T) {
	h, _ := setupAppHandler(t, 30)

	rr := serve(h, authReq(http.MethodPut, "/preferences/color_scheme", `{"option":"SYSTEM","platform_version":33}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
}

func TestResetPreference(t *testing.T) {
	h, store := setupAppHandler(t, 34)

	serve(h, authReq(http.MethodPut, "/preferences/theme_mode", `{"option":"DARK"}`, testToken))

	rr := serve(h, authReq(http.MethodDelete, "/preferences/theme_mode", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var sel SelectionDoc
	decodeBody(t, rr, &sel)
	if sel.Stored {
		t.Errorf("selection still stored after reset: %+v", sel)
	}
	def, _ := catalog.Registry().Default(catalog.KeyThemeMode)
	if sel.Option != def.ID {
		t.Errorf("option = %q, want default %q", sel.Option, def.ID)
	}
	if _, err := store.GetPreference(t.Context(), catalog.KeyThemeMode); err != storage.ErrNotFound {
		t.Errorf("GetPreference after reset: err = %v, want ErrNotFound", err)
	}
}

func TestSnapshot(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	rr := serve(h, authReq(http.MethodGet, "/preferences", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var sels []SelectionDoc
	decodeBody(t, rr, &sels)
	keys := catalog.Registry().Keys()
	if len(sels) != len(keys) {
		t.Fatalf("got %d selections, want %d", len(sels), len(keys))
	}
	for i, s := range sels {
		if s.Key != keys[i] {
			t.Errorf("selection %d key = %q, want %q", i, s.Key, keys[i])
		}
	}
}

func TestHistory(t *testing.T) {
	h, _ := setupAppHandler(t, 34)

	serve(h, authReq(http.MethodPut, "/preferences/sort_method", `{"option":"TITLE_ASC"}`, testToken))
	serve(h, authReq(http.MethodPut, "/preferences/sort_method", `{"option":"TITLE_DESC"}`, testToken))

	rr := serve(h, authReq(http.MethodGet, "/preferences/sort_method/history?limit=10", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var changes []storage.Change
	decodeBody(t, rr, &changes)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].NewValue != "TITLE_DESC" || changes[0].OldValue != "TITLE_ASC" {
		t.Errorf("newest change = %+v", changes[0])
	}

	rr = serve(h, authReq(http.MethodGet, "/preferences/layout_mode/history", "", testToken))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty history body = %s, want []", rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodGet, "/preferences/nope/history", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown domain history: status = %d, want 404", rr.Code)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=500", 100},
		{"limit=-1", 20},
		{"limit=abc", 20},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
