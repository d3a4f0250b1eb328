package subscribers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/STRATINT/econcal/internal/models"
)

// ErrNotFound is returned by Get for unknown subscriber IDs.
var ErrNotFound = errors.New("subscriber not found")

// Store is the read-only subscriber preference lookup.
type Store interface {
	List(ctx context.Context) ([]models.Subscriber, error)
	Get(ctx context.Context, id string) (models.Subscriber, error)
}

type fileDocument struct {
	Subscribers []fileSubscriber `yaml:"subscribers"`
}

type fileSubscriber struct {
	ID         string   `yaml:"id"`
	Currencies []string `yaml:"currencies"`
	Source     string   `yaml:"source"`
	TimeZone   string   `yaml:"timezone"`
}

// FileStore serves subscribers loaded from a YAML file:
//
//	subscribers:
//	  - id: desk
//	    currencies: [USD, EUR]
//	    source: both
//	    timezone: Europe/Berlin
type FileStore struct {
	path string

	mu   sync.RWMutex
	subs map[string]models.Subscriber
}

// LoadFile reads and validates path.
func LoadFile(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore serves a fixed subscriber list.
func NewStaticStore(subs ...models.Subscriber) *FileStore {
	s := &FileStore{subs: make(map[string]models.Subscriber, len(subs))}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

// Reload re-reads the backing file. The previous set is kept on error.
func (s *FileStore) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read subscribers file: %w", err)
	}
	subs, err := parse(data)
	if err != nil {
		return fmt.Errorf("parse subscribers file %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
	return nil
}

func parse(data []byte) (map[string]models.Subscriber, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	subs := make(map[string]models.Subscriber, len(doc.Subscribers))
	for i, raw := range doc.Subscribers {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			return nil, fmt.Errorf("subscriber %d: id is required", i)
		}
		if _, dup := subs[id]; dup {
			return nil, fmt.Errorf("subscriber %q: duplicate id", id)
		}
		pref, err := models.ParseSourcePreference(raw.Source)
		if err != nil {
			return nil, fmt.Errorf("subscriber %q: %w", id, err)
		}
		if raw.TimeZone != "" {
			if _, err := time.LoadLocation(raw.TimeZone); err != nil {
				return nil, fmt.Errorf("subscriber %q: invalid timezone: %w", id, err)
			}
		}
		currencies := make([]string, 0, len(raw.Currencies))
		for _, c := range raw.Currencies {
			if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
				currencies = append(currencies, c)
			}
		}
		subs[id] = models.Subscriber{
			ID:         id,
			Currencies: currencies,
			Preference: pref,
			TimeZone:   raw.TimeZone,
		}
	}
	return subs, nil
}

// List returns every subscriber ordered by ID.
func (s *FileStore) List(_ context.Context) ([]models.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) Get(_ context.Context, id string) (models.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return models.Subscriber{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sub, nil
}
