// Package jarstore keeps one JSON cookie snapshot per backend service and
// serializes read-modify-write cycles on the same service.
package jarstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mcop-proxy/internal/jar"
)

// ErrEmptyService is returned for an empty service name.
var ErrEmptyService = errors.New("jarstore: empty service name")

// Store holds snapshots in memory, encoded as they would be persisted.
type Store struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	locks     map[string]*sync.Mutex
	jarOpts   []jar.Option
}

// New returns an empty Store. opts are applied to every Jar it loads.
func New(opts ...jar.Option) *Store {
	return &Store{
		snapshots: make(map[string][]byte),
		locks:     make(map[string]*sync.Mutex),
		jarOpts:   opts,
	}
}

func (s *Store) lockFor(service string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[service]
	if !ok {
		l = &sync.Mutex{}
		s.locks[service] = l
	}
	return l
}

// Load returns the Jar of service. A service without a snapshot gets an empty Jar.
func (s *Store) Load(service string) (*jar.Jar, error) {
	if service == "" {
		return nil, ErrEmptyService
	}
	s.mu.Lock()
	raw := s.snapshots[service]
	s.mu.Unlock()

	j := jar.New(s.jarOpts...)
	if raw == nil {
		return j, nil
	}
	var snap jar.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", service, err)
	}
	j.SetOldCookies(snap)
	return j, nil
}

// Save persists the live records of j for service.
func (s *Store) Save(service string, j *jar.Jar) error {
	if service == "" {
		return ErrEmptyService
	}
	raw, err := json.Marshal(j.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot of %s: %w", service, err)
	}
	s.mu.Lock()
	s.snapshots[service] = raw
	s.mu.Unlock()
	return nil
}

// Update loads the Jar of service, calls fn and saves the result, holding the
// service lock for the whole cycle. Nothing is saved when fn fails.
func (s *Store) Update(service string, fn func(*jar.Jar) error) error {
	if service == "" {
		return ErrEmptyService
	}
	l := s.lockFor(service)
	l.Lock()
	defer l.Unlock()

	j, err := s.Load(service)
	if err != nil {
		return err
	}
	if err := fn(j); err != nil {
		return err
	}
	return s.Save(service, j)
}

// View loads the Jar of service under the service lock and calls fn with it.
// Changes made by fn are discarded.
func (s *Store) View(service string, fn func(*jar.Jar)) error {
	if service == "" {
		return ErrEmptyService
	}
	l := s.lockFor(service)
	l.Lock()
	defer l.Unlock()

	j, err := s.Load(service)
	if err != nil {
		return err
	}
	fn(j)
	return nil
}

// Services returns the names of services with a stored snapshot, sorted.
func (s *Store) Services() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
