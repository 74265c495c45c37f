// Package filestore keeps every collection in a JSON file under a data
// directory.  Documents live in memory and are replaced copy-on-write;
// each change is flushed with a write to a temporary file followed by a
// rename, so a crash never leaves a half written file behind.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

const (
	movieFile   = "movies.json"
	theaterFile = "theaters.json"
	userFile    = "users.json"
	bookingFile = "bookings.json"
)

// Store is the flat-file backend.  mu guards the maps and is only held
// for in-memory reads and swaps; check-then-act sequences are serialised
// by keys instead.
type Store struct {
	dir string
	log logrus.FieldLogger

	mu       sync.RWMutex
	movies   map[string]model.Movie
	theaters map[string]model.Theater
	users    map[string]userRecord
	bookings map[string]model.Booking

	keys  *keyedMutex
	files map[string]*sync.Mutex
}

type userRecord struct {
	model.User
	PasswordHash string `json:"passwordHash"`
}

type movieDoc struct {
	Movies []model.Movie `json:"movies"`
}

type theaterDoc struct {
	Theaters []model.Theater `json:"theaters"`
}

type userDoc struct {
	Users []userRecord `json:"users"`
}

type bookingDoc struct {
	Bookings []model.Booking `json:"bookings"`
}

// Open loads (or creates) the data directory.
func Open(dir string, log logrus.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{
		dir:      dir,
		log:      log.WithField("storage", "file"),
		movies:   map[string]model.Movie{},
		theaters: map[string]model.Theater{},
		users:    map[string]userRecord{},
		bookings: map[string]model.Booking{},
		keys:     newKeyedMutex(),
		files:    map[string]*sync.Mutex{},
	}
	for _, name := range []string{movieFile, theaterFile, userFile, bookingFile} {
		s.files[name] = &sync.Mutex{}
	}

	var md movieDoc
	var td theaterDoc
	var ud userDoc
	var bd bookingDoc
	for name, dest := range map[string]any{movieFile: &md, theaterFile: &td, userFile: &ud, bookingFile: &bd} {
		if err := s.load(name, dest); err != nil {
			return nil, err
		}
	}
	for _, m := range md.Movies {
		s.movies[m.ID] = m
	}
	for _, t := range td.Theaters {
		s.theaters[t.ID] = t
	}
	for _, u := range ud.Users {
		s.users[u.ID] = u
	}
	for _, b := range bd.Bookings {
		s.bookings[b.ID] = b
	}
	s.log.WithFields(logrus.Fields{
		"dir":      dir,
		"movies":   len(s.movies),
		"theaters": len(s.theaters),
		"bookings": len(s.bookings),
	}).Info("file store loaded")
	return s, nil
}

// Repositories exposes the store through the repository contracts.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Movies:    movieRepo{s},
		Theaters:  theaterRepo{s},
		Bookings:  bookingRepo{s},
		Users:     userRepo{s},
		Inventory: s,
		Ping:      s.Ping,
		Close:     func(context.Context) error { return nil },
	}
}

// Ping checks that the data directory is still there.
func (s *Store) Ping(context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

func (s *Store) load(name string, dest any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// persist writes the current contents of one collection.  The per-file
// mutex is taken before the snapshot so a later snapshot is never
// overwritten by an earlier one.
func (s *Store) persist(name string) error {
	lock := s.files[name]
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	var doc any
	switch name {
	case movieFile:
		doc = movieDoc{Movies: sortedValues(s.movies)}
	case theaterFile:
		doc = theaterDoc{Theaters: sortedValues(s.theaters)}
	case userFile:
		doc = userDoc{Users: sortedValues(s.users)}
	case bookingFile:
		doc = bookingDoc{Bookings: sortedValues(s.bookings)}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// rewrite persists the named files after an in-memory rollback so the
// disk matches memory again.  Failures are only logged.
func (s *Store) rewrite(names ...string) {
	for _, name := range names {
		if err := s.persist(name); err != nil {
			s.log.WithError(err).WithField("file", name).Error("rewrite after failed flush")
		}
	}
}

func sortedValues[T any](m map[string]T) []T {
	out := make([]T, 0, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
