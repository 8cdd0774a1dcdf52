package store

import (
	"context"
	"sync"

	"medialink-client-go/internal/domain/session/model"
	"medialink-client-go/internal/platform/errors"
)

type memoryStore struct {
	mutex    sync.RWMutex
	snapshot model.Snapshot
}

// NewMemory builds an in-memory credential store. State is lost on process
// exit; intended for tests and ephemeral clients.
func NewMemory(Config) Store {
	return &memoryStore{}
}

func (s *memoryStore) Load(context.Context) (model.Snapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return copySnapshot(s.snapshot), nil
}

func (s *memoryStore) SaveServer(_ context.Context, server model.ServerConfig) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot = model.Snapshot{Server: &server}
	return nil
}

func (s *memoryStore) SaveCredentials(
	_ context.Context,
	creds model.Credentials,
	profile *model.UserProfile,
) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.snapshot.Server == nil {
		return errors.New(errors.KindStorage, "store.save_credentials", "no server config present")
	}
	s.snapshot.Credentials = &creds
	s.snapshot.Profile = profile
	return nil
}

func (s *memoryStore) ClearCredentials(context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot.Credentials = nil
	s.snapshot.Profile = nil
	return nil
}

func (s *memoryStore) Reset(context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snapshot = model.Snapshot{}
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func copySnapshot(in model.Snapshot) model.Snapshot {
	var out model.Snapshot
	if in.Server != nil {
		server := *in.Server
		out.Server = &server
	}
	if in.Credentials != nil {
		creds := *in.Credentials
		out.Credentials = &creds
	}
	if in.Profile != nil {
		profile := *in.Profile
		out.Profile = &profile
	}
	return out
}
