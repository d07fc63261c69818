package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/visica/storage"
	bboltstorage "github.com/jmcleod/visica/storage/bbolt"
	"github.com/jmcleod/visica/storage/memory"
	pgstorage "github.com/jmcleod/visica/storage/postgres"
)

type closableRepository interface {
	storage.Repository
	Close() error
}

type memoryRepository struct{ *memory.Repository }

func (memoryRepository) Close() error { return nil }

func addStoreFlags(fs *pflag.FlagSet) {
	fs.String("store", "bbolt", "Record store backend: bbolt, postgres or memory")
	fs.String("postgres-dsn", "", "PostgreSQL connection string (env VISICA_POSTGRES_DSN)")
}

// openRepository opens the record store selected by the store key. The
// bbolt file lock is held by a running server, so a second process times
// out instead of blocking forever.
func openRepository(ctx context.Context) (closableRepository, string, error) {
	switch backend := cfg.String("store"); backend {
	case "postgres":
		dsn := cfg.String("postgres-dsn")
		if dsn == "" {
			return nil, "", fmt.Errorf("--postgres-dsn is required for the postgres store")
		}
		repo, err := pgstorage.NewRepositoryFromDSN(ctx, dsn)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, "postgres", nil
	case "memory":
		return memoryRepository{memory.NewRepository()}, "memory", nil
	case "bbolt", "":
		dir, err := dataDir()
		if err != nil {
			return nil, "", err
		}
		path := filepath.Join(dir, "records.db")
		repo, err := bboltstorage.NewRepositoryFromFile(path, &bbolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, "", fmt.Errorf("failed to open record storage: %w", err)
		}
		return repo, path, nil
	default:
		return nil, "", fmt.Errorf("unknown store %q", backend)
	}
}
