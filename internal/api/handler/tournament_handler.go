package handler

import (
	"encoding/json"
	"net/http"

	"ctf_arena/internal/api/middleware"
	"ctf_arena/internal/app/service"
	"ctf_arena/internal/common"

	"github.com/go-chi/chi/v5"
)

type TournamentHandler struct {
	tournamentService  *service.TournamentService
	leaderboardService *service.LeaderboardService
}

func NewTournamentHandler(ts *service.TournamentService, ls *service.LeaderboardService) *TournamentHandler {
	return &TournamentHandler{tournamentService: ts, leaderboardService: ls}
}

func (h *TournamentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/available", h.listEnrollable)
	r.Get("/{tournamentID}", h.get)
	r.Get("/{tournamentID}/leaderboard", h.leaderboard)
	r.Get("/{tournamentID}/questions", h.questions)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Post("/", h.create)
		admin.Delete("/{tournamentID}", h.delete)
	})
}

// RegisterQuestionLinkRoutes wires the question attachment endpoints mounted
// under the questions subtree.
func (h *TournamentHandler) RegisterQuestionLinkRoutes(r chi.Router) {
	r.Post("/", h.attachQuestions)
	r.Delete("/{tournamentID}/question/{questionID}", h.detachQuestion)
}

func (h *TournamentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req service.TournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, tournament)
}

func (h *TournamentHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	tournaments, err := h.tournamentService.List(r.Context(), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, tournaments)
}

func (h *TournamentHandler) listEnrollable(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	tournaments, err := h.tournamentService.ListEnrollable(r.Context(), user)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, tournaments)
}

func (h *TournamentHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	tournament, err := h.tournamentService.Get(r.Context(), user, chi.URLParam(r, "tournamentID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, tournament)
}

func (h *TournamentHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tournamentService.Delete(r.Context(), chi.URLParam(r, "tournamentID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *TournamentHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboardService.TournamentTeams(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *TournamentHandler) questions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	questions, err := h.tournamentService.Questions(r.Context(), user, chi.URLParam(r, "tournamentID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, questions)
}

func (h *TournamentHandler) attachQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TournamentID string   `json:"tournament_id"`
		QuestionIDs  []string `json:"question_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	links, err := h.tournamentService.AttachQuestions(r.Context(), req.TournamentID,
		service.AttachQuestionsRequest{QuestionIDs: req.QuestionIDs})
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, links)
}

func (h *TournamentHandler) detachQuestion(w http.ResponseWriter, r *http.Request) {
	err := h.tournamentService.DetachQuestion(r.Context(), chi.URLParam(r, "tournamentID"), chi.URLParam(r, "questionID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}
