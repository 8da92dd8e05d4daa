package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-mangadex-upload/internal/api"
	"go-mangadex-upload/internal/auth"
	"go-mangadex-upload/internal/database"
	"go-mangadex-upload/internal/uploader"

	log "github.com/sirupsen/logrus"
)

// services bundles the platform-facing components a command needs.
type services struct {
	db       *database.DB
	client   *api.Client
	session  *auth.Session
	uploader *uploader.Uploader
}

// openServices opens the local store and wires the client, session and
// uploader from globalConfig.
func openServices() (*services, error) {
	log.Debugf("Opening database at: %s", globalConfig.DatabasePath)
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client := api.NewClient(newHttpClient(), globalConfig)
	policy := api.NewRetryPolicy(globalConfig)
	session := auth.NewSession(client, db, globalConfig, policy)
	return &services{
		db:       db,
		client:   client,
		session:  session,
		uploader: uploader.New(client, session, globalConfig, policy),
	}, nil
}

func (s *services) Close() {
	if err := s.db.Close(); err != nil {
		log.WithError(err).Error("Error closing database")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
