package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vidtube/apiserver/config"
	"github.com/vidtube/apiserver/internal/mq"
	"github.com/vidtube/apiserver/internal/services"
	"github.com/vidtube/apiserver/internal/storage"
	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

// fakeUserRepo is an in-memory services.UserRepository.
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

type edge struct {
	subscriberID int64
	channelID    int64
}

// fakeChannelStore is an in-memory services.ChannelRepository and
// services.SubscriptionRepository backed by the fake user repo.
type fakeChannelStore struct {
	mu      sync.Mutex
	users   *fakeUserRepo
	edges   []edge
	videos  map[int64]types.Video
	history map[int64][]int64
}

func newFakeChannelStore(users *fakeUserRepo) *fakeChannelStore {
	return &fakeChannelStore{
		users:   users,
		videos:  make(map[int64]types.Video),
		history: make(map[int64][]int64),
	}
}

func (f *fakeChannelStore) GetProfile(ctx context.Context, username string, viewerID int64) (types.ChannelProfile, error) {
	user, err := f.users.GetByUsername(ctx, username)
	if err != nil {
		return types.ChannelProfile{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	profile := types.ChannelProfile{
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Avatar:     user.AvatarURL,
		CoverImage: user.CoverImageURL,
	}
	for _, e := range f.edges {
		if e.channelID == user.ID {
			profile.SubscriberCount++
			if e.subscriberID == viewerID {
				profile.IsSubscribed = true
			}
		}
		if e.subscriberID == user.ID {
			profile.FollowingCount++
		}
	}
	return profile, nil
}

func (f *fakeChannelStore) ListWatchHistory(ctx context.Context, userID int64, offset, limit int) ([]types.WatchEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]types.WatchEntry, 0)
	for _, videoID := range f.history[userID] {
		video := f.videos[videoID]
		owner, err := f.users.GetByID(ctx, video.OwnerID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, types.WatchEntry{
			Video: video,
			Owner: types.Owner{
				FullName: owner.FullName,
				Username: owner.Username,
				Avatar:   owner.AvatarURL,
			},
		})
	}

	if limit > 0 {
		if offset > len(entries) {
			offset = len(entries)
		}
		entries = entries[offset:]
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}
	return entries, nil
}

func (f *fakeChannelStore) Get(ctx context.Context, id int64) (types.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	video, ok := f.videos[id]
	if !ok {
		return types.Video{}, store.ErrNotFound
	}
	return video, nil
}

func (f *fakeChannelStore) AddWatchHistory(ctx context.Context, userID, videoID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[userID] = append(f.history[userID], videoID)
	return nil
}

func (f *fakeChannelStore) Subscribe(ctx context.Context, subscriberID, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.subscriberID == subscriberID && e.channelID == channelID {
			return nil
		}
	}
	f.edges = append(f.edges, edge{subscriberID: subscriberID, channelID: channelID})
	return nil
}

func (f *fakeChannelStore) Unsubscribe(ctx context.Context, subscriberID, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.edges {
		if e.subscriberID == subscriberID && e.channelID == channelID {
			f.edges = append(f.edges[:i], f.edges[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeChannelStore) IsSubscribed(ctx context.Context, subscriberID, channelID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.edges {
		if e.subscriberID == subscriberID && e.channelID == channelID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChannelStore) addVideo(owner types.User, title string) types.Video {
	f.mu.Lock()
	defer f.mu.Unlock()
	video := types.Video{
		ID:           int64(len(f.videos) + 1),
		OwnerID:      owner.ID,
		VideoFileURL: "https://cdn.example.com/media/videos/" + title + ".mp4",
		ThumbnailURL: "https://cdn.example.com/media/thumbs/" + title + ".png",
		Title:        title,
		Description:  "about " + title,
		Duration:     42,
		IsPublished:  true,
		CreatedAt:    time.Now(),
	}
	f.videos[video.ID] = video
	return video
}

// fakeObjectStorage is an in-memory storage.ObjectStorage.
type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeObjectStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if f.failPut {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStorage) Bucket() string { return "test-media" }

func (f *fakeObjectStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeMQBackend records published messages.
type fakeMQBackend struct {
	mu        sync.Mutex
	published []mq.Message
	channels  []string
}

func newFakeMQBackend() *fakeMQBackend {
	return &fakeMQBackend{}
}

func (f *fakeMQBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.published = append(f.published, mq.Message{Data: data, Attributes: attrs})
	return "msg-1", nil
}

func (f *fakeMQBackend) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	return errors.New("not implemented")
}

func (f *fakeMQBackend) Close() error { return nil }

func (f *fakeMQBackend) publishedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

// testEnv wires the real router and services over the fakes.
type testEnv struct {
	router   *chi.Mux
	users    *fakeUserRepo
	channels *fakeChannelStore
	objects  *fakeObjectStorage
	queue    *fakeMQBackend
	tokens   *services.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUserRepo()
	channels := newFakeChannelStore(users)
	objects := newFakeObjectStorage()
	queue := newFakeMQBackend()

	authCfg := config.AuthConfig{
		AccessTokenSecret:  "access-test-secret",
		RefreshTokenSecret: "refresh-test-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
	}

	userService := services.NewUserService(users)
	tokenService := services.NewTokenService(users, authCfg)
	channelService := services.NewChannelService(channels, channels, channels)
	mediaService := services.NewMediaService(storage.NewStorage(objects), mq.New(queue), "https://cdn.example.com")

	router := chi.NewRouter()
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, tokenService, channelService, mediaService)
	})

	return &testEnv{
		router:   router,
		users:    users,
		channels: channels,
		objects:  objects,
		queue:    queue,
		tokens:   tokenService,
	}
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// multipartBody builds a multipart form with string fields and PNG-ish
// file parts.
func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("create file %s: %v", name, err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write file %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func registerRequest(t *testing.T, username, email string) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t,
		map[string]string{
			formFieldUsername: username,
			formFieldEmail:    email,
			formFieldFullName: "Ana Lee",
			formFieldPassword: "secret1",
		},
		map[string][]byte{formFieldAvatar: []byte("fake png bytes")},
	)
	req := httptest.NewRequest(http.MethodPost, "/users/register", body)
	req.Header.Set("Content-Type", contentType)
	return req
}
