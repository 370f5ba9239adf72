package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ctf_arena/internal/api/middleware"
	"ctf_arena/internal/app/service"
	"ctf_arena/internal/common"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 64 << 20 // 64 MiB, attachment included

type QuestionHandler struct {
	questionService *service.QuestionService
}

func NewQuestionHandler(qs *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: qs}
}

func (h *QuestionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/question", h.get)
	r.Get("/question/download", h.download)
	r.Get("/questions/user", h.listUser)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Post("/question", h.create)
		admin.Put("/questions/{questionID}", h.update)
		admin.Delete("/question/{questionID}", h.delete)
		admin.Get("/questions/admin", h.listAdmin)
	})
}

// parseQuestionForm reads the multipart payload: scalar fields, a hints JSON
// array and an optional archive attachment.
func parseQuestionForm(r *http.Request) (service.QuestionRequest, error) {
	var req service.QuestionRequest
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, err
	}

	req.Title = r.FormValue("title")
	req.Description = r.FormValue("description")
	req.Answer = r.FormValue("answer")
	req.Difficulty = r.FormValue("difficulty")
	req.CategoryID = r.FormValue("category_id")
	req.Author = r.FormValue("author")
	req.Mode = r.FormValue("mode")
	req.Points, _ = strconv.Atoi(r.FormValue("points"))

	if raw := r.FormValue("hints"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Hints); err != nil {
			return req, err
		}
	}

	if _, header, err := r.FormFile("file"); err == nil {
		req.File = header
	} else if err != http.ErrMissingFile {
		return req, err
	}
	return req, nil
}

func (h *QuestionHandler) create(w http.ResponseWriter, r *http.Request) {
	req, err := parseQuestionForm(r)
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	question, err := h.questionService.Create(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, question)
}

func (h *QuestionHandler) update(w http.ResponseWriter, r *http.Request) {
	req, err := parseQuestionForm(r)
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	question, err := h.questionService.Update(r.Context(), chi.URLParam(r, "questionID"), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, question)
}

func (h *QuestionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.questionService.Delete(r.Context(), chi.URLParam(r, "questionID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *QuestionHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		common.RespondWithError(w, http.StatusBadRequest, "id is required")
		return
	}
	tournamentID := r.URL.Query().Get("tournament_id")

	question, err := h.questionService.Get(r.Context(), user, id, tournamentID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, question)
}

func (h *QuestionHandler) listUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *QuestionHandler) listAdmin(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *QuestionHandler) list(w http.ResponseWriter, r *http.Request, admin bool) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	var categories []string
	if raw := r.URL.Query().Get("categories"); raw != "" {
		categories = strings.Split(raw, ",")
	}

	resp, err := h.questionService.List(r.Context(), service.ListQuestionsRequest{
		Page:       page,
		Categories: categories,
		Difficulty: r.URL.Query().Get("difficulty"),
		Mode:       r.URL.Query().Get("mode"),
		SortBy:     r.URL.Query().Get("sort_by"),
		Admin:      admin,
	})
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *QuestionHandler) download(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		common.RespondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	f, name, err := h.questionService.Download(r.Context(), id)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, f)
}
