package api

import (
	"net/http"
	"time"

	"ctf_arena/internal/api/handler"
	"ctf_arena/internal/api/middleware"
	"ctf_arena/internal/app/service"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/repository"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	userRepo repository.UserRepository,
	authService *service.AuthService,
	categoryService *service.CategoryService,
	questionService *service.QuestionService,
	submissionService *service.SubmissionService,
	hintService *service.HintService,
	teamService *service.TeamService,
	tournamentService *service.TournamentService,
	leaderboardService *service.LeaderboardService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// The session token travels in a cookie, not the Authorization header.
	r.Use(jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromCookie))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	authHandler := handler.NewAuthHandler(authService)
	categoryHandler := handler.NewCategoryHandler(categoryService)
	questionHandler := handler.NewQuestionHandler(questionService)
	submissionHandler := handler.NewSubmissionHandler(submissionService)
	hintHandler := handler.NewHintHandler(hintService)
	teamHandler := handler.NewTeamHandler(teamService)
	tournamentHandler := handler.NewTournamentHandler(tournamentService, leaderboardService)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)

	r.Route("/api", func(apiRouter chi.Router) {
		authHandler.RegisterPublicRoutes(apiRouter)

		apiRouter.Group(func(protected chi.Router) {
			protected.Use(middleware.Authenticator(userRepo))

			authHandler.RegisterProtectedRoutes(protected)
			protected.Route("/categories", categoryHandler.RegisterRoutes)
			questionHandler.RegisterRoutes(protected)
			submissionHandler.RegisterRoutes(protected)
			hintHandler.RegisterRoutes(protected)
			leaderboardHandler.RegisterRoutes(protected)

			protected.Route("/questions/tournament", func(linkRouter chi.Router) {
				linkRouter.Use(middleware.AdminOnly)
				tournamentHandler.RegisterQuestionLinkRoutes(linkRouter)
			})
		})
	})

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.Authenticator(userRepo))
		protected.Route("/teams", teamHandler.RegisterRoutes)
		protected.Route("/tournaments", tournamentHandler.RegisterRoutes)
	})

	return r
}
