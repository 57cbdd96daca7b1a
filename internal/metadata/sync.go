package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/meshmgr/internal/log"
)

// Result summarises one Sync.
type Result struct {
	Changes
	Uploaded bool
	Agents   int
}

// Syncer merges discovered handlers into a Store.
type Syncer struct {
	store  Store
	by     string
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncer creates a syncer. by is recorded as last_updated_by.
func NewSyncer(store Store, by string, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:  store,
		by:     by,
		logger: log.WithComponent(logger, "metadata"),
		now:    time.Now,
	}
}

// Sync downloads the document, merges entries and uploads it when the
// agents section changed. A missing or unreadable document starts a new
// one; a failed download aborts so a transient error never wipes it.
func (s *Syncer) Sync(ctx context.Context, entries map[string]*Entry) (Result, error) {
	doc, before, err := s.download(ctx)
	if err != nil {
		return Result{}, err
	}

	changes := doc.Merge(entries, s.now(), s.by)
	for _, id := range changes.Removed {
		s.logger.Info("removing metadata for deleted or renamed agent", "agent_id", id)
	}
	res := Result{Changes: changes, Agents: len(doc.Agents)}

	after, err := agentsDigest(doc)
	if err != nil {
		return res, err
	}
	if before != nil && bytes.Equal(before, after) {
		s.logger.Info("agents metadata unchanged, skipping upload", "store", s.store.String())
		return res, nil
	}

	data, err := doc.Encode()
	if err != nil {
		return res, err
	}
	if err := s.store.Put(ctx, data); err != nil {
		return res, fmt.Errorf("upload metadata: %w", err)
	}
	res.Uploaded = true
	s.logger.Info("uploaded agents metadata",
		"store", s.store.String(),
		"agents", res.Agents,
		"added", len(changes.Added),
		"removed", len(changes.Removed),
	)
	return res, nil
}

// download returns the current document and the digest of its agents
// section, or a nil digest when starting fresh.
func (s *Syncer) download(ctx context.Context) (*Document, []byte, error) {
	data, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("no existing metadata found, creating new document", "store", s.store.String())
		return NewDocument(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download metadata: %w", err)
	}

	doc, err := Decode(data)
	if err != nil {
		s.logger.Warn("existing metadata is unreadable, replacing it", "store", s.store.String(), "error", err)
		return NewDocument(), nil, nil
	}
	digest, err := agentsDigest(doc)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("downloaded existing agents metadata", "store", s.store.String(), "agents", len(doc.Agents))
	return doc, digest, nil
}

// agentsDigest hashes the agents section. encoding/json sorts map keys, so
// equal content yields equal bytes.
func agentsDigest(doc *Document) ([]byte, error) {
	data, err := json.Marshal(doc.Agents)
	if err != nil {
		return nil, fmt.Errorf("hash metadata: %w", err)
	}
	sum := blake3.Sum256(data)
	return sum[:], nil
}
