package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jawad0110/taqa-bff/internal/errors"
	"github.com/jawad0110/taqa-bff/internal/middleware"
)

// Admin resources are always read fresh from the backend per request; the
// BFF adds role gating and error normalization, no caching.

// adminForward proxies a collection endpoint (list/create) to the backend.
func (h *Handler) adminForward(backendPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.forwardAdmin(w, r, backendPath)
	}
}

// adminForwardUID proxies a single-resource endpoint, appending the uid
// route parameter to the backend path.
func (h *Handler) adminForwardUID(backendPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.forwardAdmin(w, r, backendPath+"/"+chi.URLParam(r, "uid"))
	}
}

func (h *Handler) forwardAdmin(w http.ResponseWriter, r *http.Request, backendPath string) {
	sess, svcErr := middleware.RequireAdmin(r.Context())
	if svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}

	var body interface{}
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("invalid request body"))
			return
		}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				h.writeError(w, r, errors.InvalidInput("invalid request body"))
				return
			}
			body = json.RawMessage(raw)
		}
	}

	if backendPath != "" && r.URL.RawQuery != "" {
		backendPath += "?" + r.URL.RawQuery
	}

	var resp json.RawMessage
	err := h.backend.Do(r.Context(), h.sessions.TokenSource(sess), r.Method, backendPath, body, &resp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeRaw(w, status, resp)
}

// adminStatus reports a process and host snapshot for the dashboard.
func (h *Handler) adminStatus(w http.ResponseWriter, r *http.Request) {
	if _, svcErr := middleware.RequireAdmin(r.Context()); svcErr != nil {
		h.writeError(w, r, svcErr)
		return
	}

	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = map[string]interface{}{
			"total":        vm.Total,
			"used":         vm.Used,
			"used_percent": vm.UsedPercent,
		}
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status["cpu_percent"] = percents[0]
	}

	writeJSON(w, http.StatusOK, status)
}
