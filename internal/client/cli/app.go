// Package cli implements the interactive REPL front end of the vault.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"

	"github.com/pinvault/pinvault/internal/backup"
	"github.com/pinvault/pinvault/internal/client/config"
	"github.com/pinvault/pinvault/internal/ledger"
	"github.com/pinvault/pinvault/internal/logging"
	"github.com/pinvault/pinvault/internal/storage"
	"github.com/pinvault/pinvault/internal/timex"
	"github.com/pinvault/pinvault/internal/vault/lockout"
	"github.com/pinvault/pinvault/internal/vault/services"
	"github.com/pinvault/pinvault/internal/vault/session"
	"github.com/pinvault/pinvault/internal/vault/token"

	_ "modernc.org/sqlite"
)

type App struct {
	config *config.Config
	svc    *services.VaultService
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
	logger logging.Logger
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	db, err := storage.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	logger := logging.NewTextLogger(os.Stderr, slog.LevelWarn)
	clock := timex.Real{}

	sess := session.NewGuard(clock, logger)
	guard := lockout.NewGuard(db, clock, logger)
	tokens := token.NewManager(db, clock)
	audit := ledger.NewSlogLedger(logging.NewTextLogger(os.Stderr, slog.LevelInfo))

	svc := services.NewVaultService(db, sess, guard, tokens, audit, clock, logger)
	if c.S3Bucket != "" {
		svc.SetBlobStore(backup.NewS3BlobStore(backup.S3Config{
			Region:       c.S3Region,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3Endpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		}))
	}

	return &App{
		config: c,
		svc:    svc,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		logger: logger,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.db.Close()
	a.Root(ctx)
}
