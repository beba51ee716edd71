package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/vidtube/apiserver/internal/mq"
	"github.com/vidtube/apiserver/internal/storage"
)

const uploadedEventChannel = "media.uploaded"

// UploadedObject identifies a stored media object.
type UploadedObject struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// MediaService stages uploaded images in object storage and announces
// stored media to downstream processors over the message queue.
type MediaService struct {
	storage       *storage.Storage
	events        *mq.MQ
	publicBaseURL string
}

// NewMediaService constructs a MediaService. events may be nil, which
// disables announcements.
func NewMediaService(store *storage.Storage, events *mq.MQ, publicBaseURL string) *MediaService {
	return &MediaService{
		storage:       store,
		events:        events,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// UploadImage stores an uploaded image under a fresh key in the given
// kind prefix ("avatars", "covers") and returns its key and public URL.
func (s *MediaService) UploadImage(ctx context.Context, kind, filename, contentType string, data []byte) (UploadedObject, error) {
	if len(data) == 0 {
		return UploadedObject{}, validationErrorf(kind + " file is required")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key := kind + "/" + uuid.New().String() + strings.ToLower(path.Ext(filename))
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return UploadedObject{}, fmt.Errorf("upload %s: %w", kind, err)
	}

	return UploadedObject{Key: key, URL: s.objectURL(key)}, nil
}

// Remove deletes a stored object. Used as the compensating step when
// record persistence fails after an upload succeeded.
func (s *MediaService) Remove(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

// Announce publishes a media.uploaded event for a stored object. It is
// called after the owning record has been persisted and must never
// block or fail the request path; callers log the returned error.
func (s *MediaService) Announce(ctx context.Context, userID int64, kind string, obj UploadedObject) error {
	if s.events == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"userId": userID,
		"kind":   kind,
		"key":    obj.Key,
		"url":    obj.URL,
	})
	if err != nil {
		return err
	}

	_, err = s.events.Publish(ctx, uploadedEventChannel, payload, map[string]string{
		"kind": kind,
	})
	return err
}

func (s *MediaService) objectURL(key string) string {
	if s.publicBaseURL == "" {
		return "/" + s.storage.Bucket() + "/" + key
	}
	return s.publicBaseURL + "/" + s.storage.Bucket() + "/" + key
}
