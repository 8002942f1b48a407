package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/echowrite/internal/domain"
)

var (
	_ UserRepository = (*MemoryUserRepo)(nil)
	_ KeyRepository  = (*MemoryKeyRepo)(nil)
)

// MemoryUserRepo is an in-process UserRepository that enforces the same
// uniqueness rules as the users table. It backs tests and local tooling.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
	now   func() time.Time
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[int64]domain.User), now: time.Now}
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepo) UsernameExists(_ context.Context, username string, excludeID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usernameTaken(username, excludeID), nil
}

func (r *MemoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	if r.usernameTaken(user.Username, 0) {
		return domain.User{}, domain.ErrUsernameTaken
	}
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepo) UpdateProfile(_ context.Context, id int64, update domain.ProfileUpdate) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	if update.Username != nil {
		if r.usernameTaken(*update.Username, id) {
			return domain.User{}, domain.ErrUsernameTaken
		}
		u.Username = *update.Username
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.AvatarURL != nil {
		u.AvatarURL = *update.AvatarURL
	}
	if update.Bio != nil {
		bio := *update.Bio
		u.Bio = &bio
	}
	u.UpdatedAt = r.now().UTC()
	r.users[id] = u
	return u, nil
}

func (r *MemoryUserRepo) UpdatePassword(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = r.now().UTC()
	r.users[id] = u
	return nil
}

// Len reports the number of stored accounts.
func (r *MemoryUserRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *MemoryUserRepo) usernameTaken(username string, excludeID int64) bool {
	for id, u := range r.users {
		if id != excludeID && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

// MemoryKeyRepo holds at most one active signing key.
type MemoryKeyRepo struct {
	mu  sync.Mutex
	key *domain.SigningKey
}

func NewMemoryKeyRepo() *MemoryKeyRepo {
	return &MemoryKeyRepo{}
}

func (r *MemoryKeyRepo) GetActiveKey(_ context.Context) (domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.key == nil {
		return domain.SigningKey{}, domain.ErrKeyNotFound
	}
	return *r.key, nil
}

func (r *MemoryKeyRepo) CreateKey(_ context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.key != nil {
		return *r.key, nil
	}
	key.ID = 1
	r.key = &key
	return key, nil
}
