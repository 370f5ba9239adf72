package database

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
	"time"

	"ctf_arena/internal/platform/config"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var DB *sql.DB

func Connect() {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err = DB.Ping(); err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	fmt.Println("Successfully connected to PostgreSQL database!")
}

// Migrate applies the embedded schema migrations in filename order. Each file
// is tracked in schema_migrations and applied at most once.
func Migrate() {
	if _, err := DB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		log.Fatalf("Error creating schema_migrations table: %v", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		log.Fatalf("Error reading migrations: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var exists bool
		err := DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&exists)
		if err != nil {
			log.Fatalf("Error checking migration %s: %v", name, err)
		}
		if exists {
			continue
		}

		contents, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			log.Fatalf("Error reading migration %s: %v", name, err)
		}

		tx, err := DB.Begin()
		if err != nil {
			log.Fatalf("Error beginning migration transaction: %v", err)
		}
		if _, err := tx.Exec(string(contents)); err != nil {
			tx.Rollback()
			log.Fatalf("Error applying migration %s: %v", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			log.Fatalf("Error recording migration %s: %v", name, err)
		}
		if err := tx.Commit(); err != nil {
			log.Fatalf("Error committing migration %s: %v", name, err)
		}
		log.Printf("Applied migration %s", name)
	}
}

func Close() {
	if DB != nil {
		DB.Close()
		fmt.Println("Database connection closed.")
	}
}
