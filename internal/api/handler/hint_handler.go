package handler

import (
	"net/http"

	"ctf_arena/internal/api/middleware"
	"ctf_arena/internal/app/service"
	"ctf_arena/internal/common"

	"github.com/go-chi/chi/v5"
)

type HintHandler struct {
	hintService *service.HintService
}

func NewHintHandler(hs *service.HintService) *HintHandler {
	return &HintHandler{hintService: hs}
}

func (h *HintHandler) RegisterRoutes(r chi.Router) {
	r.Get("/question/usehint", h.useHint)
}

func (h *HintHandler) useHint(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	hintID := r.URL.Query().Get("hint_id")
	if hintID == "" {
		common.RespondWithError(w, http.StatusBadRequest, "hint_id is required")
		return
	}
	tournamentID := r.URL.Query().Get("tournament_id")

	reveal, err := h.hintService.UseHint(r.Context(), user, hintID, tournamentID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, reveal)
}
