package inmemory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"caseTasks/internal/logger"
	"caseTasks/internal/models/user"
	repo "caseTasks/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type UserStorage struct {
	mtx   sync.RWMutex
	users map[uuid.UUID]user.User
}

func NewUserStorage(users ...user.User) *UserStorage {
	s := &UserStorage{users: make(map[uuid.UUID]user.User, len(users))}
	for _, u := range users {
		s.users[u.UUID] = u
	}
	return s
}

type seedFile struct {
	Users []user.User `yaml:"users"`
}

// LoadFile builds a directory from a YAML seed file with a top-level users list.
func LoadFile(path string) (*UserStorage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading users file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing users file %s: %w", path, err)
	}

	for i, u := range seed.Users {
		if u.UUID == uuid.Nil {
			return nil, fmt.Errorf("users file %s: entry %d has no id", path, i)
		}
		if _, err := user.ParseKind(string(u.Kind)); err != nil {
			return nil, fmt.Errorf("users file %s: user %s: %w", path, u.UUID, err)
		}
	}

	logger.Info("Repository: user directory loaded", zap.String("path", path), zap.Int("users", len(seed.Users)))
	return NewUserStorage(seed.Users...), nil
}

func (s *UserStorage) Add(u user.User) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.users[u.UUID] = u
}

func (s *UserStorage) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &u, nil
}

// All returns the users in no particular order.
func (s *UserStorage) All() []user.User {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}
