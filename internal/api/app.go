package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/notesprefs/internal/preference"
	"github.com/kalambet/notesprefs/internal/settings"
	"github.com/kalambet/notesprefs/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Manager *settings.Manager
	Token   string
	// Caps is used when a request does not name a platform version.
	Caps preference.Capabilities
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
}

// SelectionDoc is the wire form of a resolved preference.
type SelectionDoc struct {
	Key        string `json:"key"`
	Option     string `json:"option"`
	Label      string `json:"label,omitempty"`
	Value      *int64 `json:"value,omitempty"`
	Raw        string `json:"raw,omitempty"`
	Stored     bool   `json:"stored"`
	Normalized bool   `json:"normalized,omitempty"`
}

// SetRequest is the body of PUT /preferences/{key}.
type SetRequest struct {
	Option          string `json:"option"`
	PlatformVersion *int   `json:"platform_version,omitempty"`
}

func selectionDoc(sel settings.Selection) SelectionDoc {
	return SelectionDoc{
		Key:        sel.Key,
		Option:     sel.Option.ID,
		Label:      sel.Option.Label,
		Value:      optionValue(sel.Option),
		Raw:        sel.Raw,
		Stored:     sel.Stored,
		Normalized: sel.Normalized,
	}
}

func optionValue(o preference.Option) *int64 {
	if !o.HasValue {
		return nil
	}
	v := o.Value
	return &v
}

// NewAppHandler returns the preference API. /health and /metrics are open;
// everything else needs the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/domains", handleListDomains(deps))
		r.Get("/domains/{key}", handleGetDomain(deps))
		r.Get("/preferences", handleSnapshot(deps))
		r.Get("/preferences/{key}", handleGetPreference(deps))
		r.Put("/preferences/{key}", handleSetPreference(deps))
		r.Delete("/preferences/{key}", handleResetPreference(deps))
		r.Get("/preferences/{key}/history", handleHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListDomains(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps, err := requestCaps(r, deps.Caps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, preference.Export(deps.Manager.Registry(), caps))
	}
}

func handleGetDomain(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caps, err := requestCaps(r, deps.Caps)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		d, err := deps.Manager.Registry().Domain(chi.URLParam(r, "key"))
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, preference.DescribeDomain(d, caps))
	}
}

func handleSnapshot(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sels, err := deps.Manager.Snapshot(r.Context())
		if err != nil {
			writeManagerError(w, err)
			return
		}
		out := make([]SelectionDoc, len(sels))
		for i, s := range sels {
			out[i] = selectionDoc(s)
		}
		writeJSON(w, out)
	}
}

func handleGetPreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sel, err := deps.Manager.Get(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, selectionDoc(sel))
	}
}

func handleSetPreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Option == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "option is required")
			return
		}
		caps := deps.Caps
		if req.PlatformVersion != nil {
			caps.PlatformVersion = *req.PlatformVersion
		}

		key := chi.URLParam(r, "key")
		if _, err := deps.Manager.Set(r.Context(), key, req.Option, caps); err != nil {
			writeManagerError(w, err)
			return
		}
		sel, err := deps.Manager.Get(r.Context(), key)
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, selectionDoc(sel))
	}
}

func handleResetPreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if _, err := deps.Manager.Reset(r.Context(), key); err != nil {
			writeManagerError(w, err)
			return
		}
		sel, err := deps.Manager.Get(r.Context(), key)
		if err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, selectionDoc(sel))
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		changes, err := deps.Manager.History(r.Context(), chi.URLParam(r, "key"), limit)
		if err != nil {
			writeManagerError(w, err)
			return
		}
		if changes == nil {
			changes = []storage.Change{}
		}
		writeJSON(w, changes)
	}
}

// requestCaps applies the platform_version query parameter over def.
func requestCaps(r *http.Request, def preference.Capabilities) (preference.Capabilities, error) {
	s := r.URL.Query().Get("platform_version")
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def, fmt.Errorf("invalid platform_version %q", s)
	}
	return preference.Capabilities{PlatformVersion: v}, nil
}

func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, preference.ErrUnknownDomain):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, settings.ErrUnknownOption):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, settings.ErrUnsupportedOption):
		httpError(w, http.StatusConflict, "unsupported_option", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
