package settings

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JustinTDCT/SkipVault/internal/httputil"
)

type Handler struct {
	provider *Provider
}

func NewHandler(p *Provider) *Handler {
	return &Handler{provider: p}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Put("/", h.update)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	values, err := h.provider.Values(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, values)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	for key, value := range req {
		if err := Validate(key, value); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "INVALID_SETTING", err.Error())
			return
		}
	}
	if err := h.provider.Update(r.Context(), req); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to save setting")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.provider.Options())
}
