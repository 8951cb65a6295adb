package skiplist

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/metrics"
)

// Saver persists the backing config after the list changes.
type Saver interface {
	Save() error
}

// Store is the durable set of assets known to crash the renderer. It is backed
// by a slice owned by the batch config so that saving the config saves the list.
type Store struct {
	ids   *[]uuid.UUID
	index map[uuid.UUID]struct{}
	saver Saver
	log   *slog.Logger
}

// New indexes *ids, dropping duplicates in place.
func New(ids *[]uuid.UUID, saver Saver, log *slog.Logger) *Store {
	if ids == nil {
		ids = new([]uuid.UUID)
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{ids: ids, index: make(map[uuid.UUID]struct{}, len(*ids)), saver: saver, log: log}
	dedup := (*ids)[:0]
	for _, id := range *ids {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		dedup = append(dedup, id)
	}
	*ids = dedup
	metrics.SetSkipListSize(len(dedup))
	return s
}

func (s *Store) Contains(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

// Add records id and saves. It returns false, without saving, when id is
// already listed. Save failures are logged and otherwise ignored.
func (s *Store) Add(id uuid.UUID, name string) bool {
	added, err := s.Insert(id, name)
	if err != nil {
		s.log.Error("Failed to save config", "error", err)
	}
	return added
}

// Insert is Add for operator tooling: the save error is returned. The id
// stays listed in memory either way.
func (s *Store) Insert(id uuid.UUID, name string) (bool, error) {
	if s.Contains(id) {
		return false, nil
	}
	s.index[id] = struct{}{}
	*s.ids = append(*s.ids, id)
	metrics.SetSkipListSize(len(*s.ids))
	if s.saver == nil {
		s.log.Info("Added asset to skip list", "id", id, "name", name)
		return true, nil
	}
	if err := s.saver.Save(); err != nil {
		return true, err
	}
	s.log.Info("Added asset to skip list and saved config", "id", id, "name", name)
	return true, nil
}

// Remove drops id and saves. Only operator tooling calls this.
func (s *Store) Remove(id uuid.UUID) (bool, error) {
	if !s.Contains(id) {
		return false, nil
	}
	delete(s.index, id)
	out := (*s.ids)[:0]
	for _, v := range *s.ids {
		if v != id {
			out = append(out, v)
		}
	}
	*s.ids = out
	metrics.SetSkipListSize(len(out))
	if s.saver == nil {
		return true, nil
	}
	return true, s.saver.Save()
}

func (s *Store) Len() int { return len(*s.ids) }

// List returns a copy in insertion order.
func (s *Store) List() []uuid.UUID {
	return append([]uuid.UUID(nil), (*s.ids)...)
}
