package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

const snapshotVersion = 1

type snapshot struct {
	Version       int                    `json:"version"`
	SavedAt       time.Time              `json:"saved_at"`
	Chats         []ctxitem.Chat         `json:"chats"`
	Items         []*ctxitem.Item        `json:"items"`
	Relationships []ctxitem.Relationship `json:"relationships"`
}

// load reads the snapshot file. A missing file is an empty store.
func (s *MemoryStore) load(ctx context.Context) error {
	data, err := os.ReadFile(s.cfg.SnapshotPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading snapshot: %w", ctxitem.ErrPersistenceUnavailable, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: decoding snapshot %s: %w", ctxitem.ErrPersistenceUnavailable, s.cfg.SnapshotPath, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: snapshot version %d, want %d", ctxitem.ErrPersistenceUnavailable, snap.Version, snapshotVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range snap.Chats {
		c := snap.Chats[i]
		s.chats[c.ID] = &c
	}
	for _, it := range snap.Items {
		if validateItem(it) != nil {
			continue
		}
		s.items[it.ID] = it
		s.index(ctx, it)
	}
	var dropped int
	for _, r := range snap.Relationships {
		if !s.nodeExists(r.FromID) || !s.nodeExists(r.ToID) {
			dropped++
			continue
		}
		s.putEdge(r)
	}
	if dropped > 0 {
		s.logger.Warn("dropped dangling relationships from snapshot", zap.Int("count", dropped))
	}
	return nil
}

// save writes the snapshot atomically through a temp file.
func (s *MemoryStore) save() error {
	s.mu.RLock()
	snap := snapshot{
		Version:       snapshotVersion,
		SavedAt:       time.Now().UTC(),
		Chats:         make([]ctxitem.Chat, 0, len(s.chats)),
		Items:         make([]*ctxitem.Item, 0, len(s.items)),
		Relationships: make([]ctxitem.Relationship, 0, len(s.edges)),
	}
	for _, c := range s.chats {
		snap.Chats = append(snap.Chats, *c)
	}
	for _, it := range s.items {
		snap.Items = append(snap.Items, it)
	}
	for _, r := range s.edges {
		snap.Relationships = append(snap.Relationships, r)
	}
	data, err := json.Marshal(snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.cfg.SnapshotPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: creating snapshot dir: %w", ctxitem.ErrPersistenceUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("%w: creating temp snapshot: %w", ctxitem.ErrPersistenceUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing snapshot: %w", ctxitem.ErrPersistenceUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing snapshot: %w", ctxitem.ErrPersistenceUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), s.cfg.SnapshotPath); err != nil {
		return fmt.Errorf("%w: replacing snapshot: %w", ctxitem.ErrPersistenceUnavailable, err)
	}
	s.logger.Debug("snapshot written",
		zap.String("path", s.cfg.SnapshotPath),
		zap.Int("items", len(snap.Items)))
	return nil
}
