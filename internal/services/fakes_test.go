package services

import (
	"context"
	"sync"
	"time"

	"github.com/vidtube/apiserver/config"
	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// fakeUserRepo is an in-memory UserRepository for tests.
type fakeUserRepo struct {
	mu    sync.Mutex
	seq   int64
	users map[int64]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]types.User)}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return f.find(func(u types.User) bool { return u.Username == username })
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return f.find(func(u types.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) GetByUsernameOrEmail(ctx context.Context, identifier string) (types.User, error) {
	return f.find(func(u types.User) bool { return u.Username == identifier || u.Email == identifier })
}

func (f *fakeUserRepo) find(match func(types.User) bool) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if match(user) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	f.seq++
	user.ID = f.seq
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) UpdateRefreshToken(ctx context.Context, id int64, token string) error {
	return f.update(id, func(u *types.User) { u.RefreshToken = token })
}

func (f *fakeUserRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return f.update(id, func(u *types.User) { u.PasswordHash = hash })
}

func (f *fakeUserRepo) UpdateAvatarURL(ctx context.Context, id int64, url string) error {
	return f.update(id, func(u *types.User) { u.AvatarURL = url })
}

func (f *fakeUserRepo) UpdateCoverImageURL(ctx context.Context, id int64, url string) error {
	return f.update(id, func(u *types.User) { u.CoverImageURL = url })
}

func (f *fakeUserRepo) update(id int64, apply func(*types.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(&user)
	user.UpdatedAt = time.Now()
	f.users[id] = user
	return nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:  "access-test-secret",
		RefreshTokenSecret: "refresh-test-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
	}
}

func seedUser(repo *fakeUserRepo, username, password string) types.User {
	hash, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	user, err := repo.Create(context.Background(), types.User{
		Username:     username,
		Email:        username + "@example.com",
		FullName:     username + " test",
		AvatarURL:    "https://cdn.example.com/media/avatars/" + username + ".png",
		PasswordHash: hash,
	})
	if err != nil {
		panic(err)
	}
	return user
}
