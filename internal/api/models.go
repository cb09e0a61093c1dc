package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/whisperd/internal/modelprep"
)

// ModelsHandler serves the model listing and preparation endpoints.
type ModelsHandler struct {
	models *modelprep.Manager
	log    zerolog.Logger
}

func NewModelsHandler(models *modelprep.Manager, log zerolog.Logger) *ModelsHandler {
	return &ModelsHandler{
		models: models,
		log:    log.With().Str("handler", "models").Logger(),
	}
}

// Routes registers the model endpoints.
func (h *ModelsHandler) Routes(r chi.Router) {
	r.Get("/v1/models", h.List)
	r.Get("/v1/models/{id}", h.Get)
	r.Post("/v1/models/{id}/prepare", h.Prepare)
}

// modelList is the OpenAI list-models envelope.
type modelList struct {
	Object string            `json:"object"`
	Data   []modelprep.Model `json:"data"`
}

// List handles GET /v1/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, modelList{Object: "list", Data: h.models.List()})
}

// Get handles GET /v1/models/{id}.
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mod, ok := h.models.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "model not found")
		return
	}
	WriteJSON(w, http.StatusOK, mod)
}

// Prepare handles POST /v1/models/{id}/prepare. Safe to call
// repeatedly; concurrent calls for the same model run the underlying
// switch at most once.
func (h *ModelsHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.models.Has(id) {
		WriteError(w, http.StatusNotFound, "model not found")
		return
	}

	if err := h.models.Prepare(r.Context(), id); err != nil {
		h.log.Error().Err(err).Str("model", id).Msg("model preparation failed")
		WriteErrorReason(w, http.StatusInternalServerError, "model preparation failed", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"model": id, "prepared": true})
}
