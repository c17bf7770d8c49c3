package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/travelmate/chat/internal/logger"
)

const (
	devPort     = 5432
	devUser     = "travelmate"
	devPassword = "travelmate_secret"
	devDatabase = "travelmate"
)

// StartEmbeddedPostgres поднимает локальный Postgres в ./.pgdata и возвращает его URL.
func StartEmbeddedPostgres() (*embeddedpostgres.EmbeddedPostgres, string, error) {
	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(devPort).
			Username(devUser).
			Password(devPassword).
			Database(devDatabase).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "travelmate-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, "", fmt.Errorf("start embedded postgres: %w", err)
	}
	url := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", devUser, devPassword, devPort, devDatabase)
	logger.Infof("embedded PostgreSQL running on port %d", devPort)
	return db, url, nil
}
