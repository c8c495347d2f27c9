// Package storage keeps saved documents: an id, a title and a snapshot of
// the lines plus the id counter.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ilnaes/linepad/internal/config"
	"github.com/ilnaes/linepad/internal/document"
)

// ErrNotFound is returned when a document id is unknown.
var ErrNotFound = errors.New("document not found")

// Meta identifies a stored document.
type Meta struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	SavedAt time.Time `json:"savedAt"`
}

// Record is a stored document.
type Record struct {
	Meta
	Snapshot document.Snapshot `json:"snapshot"`
}

// Store defines document persistence.
// All implementations must be safe for concurrent use.
type Store interface {
	// Save stores snap under id, replacing any earlier version
	Save(ctx context.Context, id, title string, snap document.Snapshot) error

	// Load returns ErrNotFound if id was never saved
	Load(ctx context.Context, id string) (Record, error)

	// List is sorted by title, then id
	List(ctx context.Context) ([]Meta, error)

	Close() error
}

// Open builds the backend named in cfg. rdb is only used by the redis
// backend and may be nil otherwise.
func Open(ctx context.Context, cfg config.Config, rdb *redis.Client) (Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageBolt:
		return NewBoltStore(cfg.BoltPath)
	case config.StorageMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	case config.StorageRedis:
		if rdb == nil {
			return nil, errors.New("redis storage needs a redis client")
		}
		return NewRedisStore(ctx, rdb)
	case config.StoragePostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}

func sortMetas(ms []Meta) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Title != ms[j].Title {
			return ms[i].Title < ms[j].Title
		}
		return ms[i].ID < ms[j].ID
	})
}

// stored snapshots never carry lock holders
func stripHolders(s document.Snapshot) document.Snapshot {
	lines := make([]document.LineData, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = document.LineData{ID: l.ID, Content: l.Content}
	}
	return document.Snapshot{TopLineID: s.TopLineID, Lines: lines}
}
