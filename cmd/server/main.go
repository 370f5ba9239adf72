package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctf_arena/internal/api"
	"ctf_arena/internal/app/service"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/repository"
	"ctf_arena/internal/platform/cache"
	"ctf_arena/internal/platform/config"
	"ctf_arena/internal/platform/database"
	"ctf_arena/internal/platform/storage"

	"golang.org/x/oauth2"
)

func main() {
	config.Load()
	security.InitJWT()

	database.Connect()
	defer database.Close()
	database.Migrate()

	cache.ConnectRedis()
	defer cache.CloseRedis()

	eventZone, err := time.LoadLocation(config.AppConfig.EventTimeZone)
	if err != nil {
		log.Fatalf("Invalid EVENT_TIME_ZONE %q: %v", config.AppConfig.EventTimeZone, err)
	}

	cipher, err := security.NewAnswerCipher(config.AppConfig.AnswerSecret)
	if err != nil {
		log.Fatalf("Could not initialize answer cipher: %v", err)
	}

	fileStore := storage.NewFileStore(config.AppConfig.UploadDir)

	oauthConfig := &oauth2.Config{
		ClientID:     config.AppConfig.OAuthClientID,
		ClientSecret: config.AppConfig.OAuthClientSecret,
		RedirectURL:  config.AppConfig.OAuthRedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.AppConfig.OAuthAuthURL,
			TokenURL: config.AppConfig.OAuthTokenURL,
		},
	}

	userRepo := repository.NewPgUserRepository(database.DB)
	categoryRepo := repository.NewPgCategoryRepository(database.DB)
	questionRepo := repository.NewPgQuestionRepository(database.DB)
	submissionRepo := repository.NewPgSubmissionRepository(database.DB)
	scoreRepo := repository.NewPgScoreRepository(database.DB)
	teamRepo := repository.NewPgTeamRepository(database.DB)
	tournamentRepo := repository.NewPgTournamentRepository(database.DB)

	leaderboardService := service.NewLeaderboardService(scoreRepo, cache.RDB, config.AppConfig.LeaderboardCacheTTL)
	authService := service.NewAuthService(userRepo, scoreRepo, oauthConfig, config.AppConfig.OAuthUserInfoURL, database.DB)
	categoryService := service.NewCategoryService(categoryRepo)
	questionService := service.NewQuestionService(questionRepo, submissionRepo, scoreRepo, tournamentRepo,
		categoryRepo, fileStore, cipher, leaderboardService, database.DB)
	submissionService := service.NewSubmissionService(submissionRepo, questionRepo, scoreRepo, teamRepo,
		tournamentRepo, cipher, leaderboardService, database.DB, config.AppConfig.AnswerPrefix, eventZone)
	hintService := service.NewHintService(questionRepo, submissionRepo, scoreRepo, teamRepo,
		tournamentRepo, leaderboardService, database.DB, eventZone)
	teamService := service.NewTeamService(teamRepo, tournamentRepo, scoreRepo, database.DB)
	tournamentService := service.NewTournamentService(tournamentRepo, questionRepo, submissionRepo,
		scoreRepo, leaderboardService, database.DB)

	router := api.NewRouter(userRepo, authService, categoryService, questionService,
		submissionService, hintService, teamService, tournamentService, leaderboardService)

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", config.AppConfig.APIPort, err)
		}
	}()

	<-stop

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped gracefully.")
}
