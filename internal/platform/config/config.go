package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AnswerSecret is hashed (SHA-256) into the AES key that encrypts
	// question answers at rest.
	AnswerSecret string
	// AnswerPrefix wraps practice-mode answers: PREFIX{secret}.
	AnswerPrefix string

	// EventTimeZone is the named zone tournament windows are interpreted in.
	// Comparisons happen on the UTC instant.
	EventTimeZone string

	UploadDir           string
	LeaderboardCacheTTL time.Duration

	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthRedirectURL  string
	OAuthUserInfoURL  string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		JWTKey:              []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:              time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "user"),
		DBPassword:          getEnv("DB_PASSWORD", "password"),
		DBName:              getEnv("DB_NAME", "ctf_arena_db"),
		DBSslMode:           getEnv("DB_SSLMODE", "disable"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		AnswerSecret:        getEnv("ANSWER_SECRET", "defaultanswersecret"),
		AnswerPrefix:        getEnv("ANSWER_PREFIX", "ctf"),
		EventTimeZone:       getEnv("EVENT_TIME_ZONE", "Asia/Bangkok"),
		UploadDir:           getEnv("UPLOAD_DIR", "./uploads"),
		LeaderboardCacheTTL: time.Duration(getEnvAsInt("LEADERBOARD_CACHE_TTL_SECONDS", 30)) * time.Second,
		OAuthClientID:       getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret:   getEnv("OAUTH_CLIENT_SECRET", ""),
		OAuthAuthURL:        getEnv("OAUTH_AUTH_URL", ""),
		OAuthTokenURL:       getEnv("OAUTH_TOKEN_URL", ""),
		OAuthRedirectURL:    getEnv("OAUTH_REDIRECT_URL", ""),
		OAuthUserInfoURL:    getEnv("OAUTH_USERINFO_URL", ""),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
