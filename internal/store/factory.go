package store

import (
	"context"
	"time"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/logger"
)

// Open selects the record store backend once at startup. With a project ID
// configured it connects to Firestore and probes it; if the probe fails the
// in-memory store is returned instead so the service still comes up.
func Open(ctx context.Context, cfg *config.StoreConfig, log *logger.Logger) Store {
	if cfg.ProjectID == "" {
		log.Warn("No store project configured, using in-memory record store")
		return NewMemoryStore()
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	fs, err := NewFirestoreStore(probeCtx, cfg.ProjectID, cfg.Collection, cfg.Credentials)
	if err != nil {
		log.WithError(err).Warn("Record store unavailable, falling back to in-memory store")
		return NewMemoryStore()
	}
	if err := fs.Ping(probeCtx); err != nil {
		log.WithError(err).Warn("Record store unreachable, falling back to in-memory store")
		_ = fs.Close()
		return NewMemoryStore()
	}

	log.WithField("collection", cfg.Collection).Info("Connected to remote record store")
	return fs
}
