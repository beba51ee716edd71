package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vidtube/apiserver/internal/services"
)

// ChannelHandler provides the channel read-model and media-update
// endpoints.
type ChannelHandler struct {
	channels *services.ChannelService
	users    *services.UserService
	media    *services.MediaService
}

func NewChannelHandler(channels *services.ChannelService, users *services.UserService, media *services.MediaService) *ChannelHandler {
	return &ChannelHandler{channels: channels, users: users, media: media}
}

// Profile returns the public channel profile for the username in the
// path, computed from the viewpoint of the authenticated user.
func (h *ChannelHandler) Profile(w http.ResponseWriter, r *http.Request) error {
	viewer, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	username := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "username")))
	if username == "" {
		return errBadRequest("username is required")
	}

	profile, err := h.channels.Profile(r.Context(), username, viewer.ID)
	if err != nil {
		return err
	}

	respondData(w, http.StatusOK, profile, "channel profile")
	return nil
}

// WatchHistory returns the authenticated user's resolved watch
// history in stored order. Without pagination parameters the whole
// sequence is returned.
func (h *ChannelHandler) WatchHistory(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	offset, limit, err := parseHistoryWindow(r)
	if err != nil {
		return errBadRequest(err.Error())
	}

	entries, err := h.channels.WatchHistory(r.Context(), user.ID, offset, limit)
	if err != nil {
		return err
	}

	respondData(w, http.StatusOK, entries, "watch history")
	return nil
}

// ToggleSubscription flips the viewer's subscription to the channel in
// the path and reports the resulting state.
func (h *ChannelHandler) ToggleSubscription(w http.ResponseWriter, r *http.Request) error {
	viewer, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	username := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "username")))
	if username == "" {
		return errBadRequest("username is required")
	}

	channelUser, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		return err
	}

	subscribed, err := h.channels.ToggleSubscription(r.Context(), viewer.ID, channelUser.ID)
	if err != nil {
		return err
	}

	respondData(w, http.StatusOK, map[string]bool{"subscribed": subscribed}, "subscription toggled")
	return nil
}

// RecordWatch appends the video in the path to the viewer's watch
// history.
func (h *ChannelHandler) RecordWatch(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	videoID, err := strconv.ParseInt(chi.URLParam(r, "videoID"), 10, 64)
	if err != nil || videoID < 1 {
		return errBadRequest("invalid video id")
	}

	if err := h.channels.RecordWatch(r.Context(), user.ID, videoID); err != nil {
		return err
	}

	respondData(w, http.StatusOK, nil, "watch recorded")
	return nil
}

// UpdateAvatar replaces the authenticated user's avatar image.
func (h *ChannelHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) error {
	return h.updateImage(w, r, formFieldAvatar, mediaKindAvatar, "avatar updated successfully")
}

// UpdateCoverImage replaces the authenticated user's cover image.
func (h *ChannelHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) error {
	return h.updateImage(w, r, formFieldCoverImage, mediaKindCover, "cover image updated successfully")
}

func (h *ChannelHandler) updateImage(w http.ResponseWriter, r *http.Request, field, kind, message string) error {
	user, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return errBadRequest("invalid multipart form")
	}

	image, ok, err := formImage(r, field)
	if err != nil {
		return err
	}
	if !ok {
		return errBadRequest(field + " file is required")
	}

	uploaded, err := h.media.UploadImage(r.Context(), kind, image.filename, image.contentType, image.data)
	if err != nil {
		return err
	}

	updated := user
	switch kind {
	case mediaKindAvatar:
		updated, err = h.users.UpdateAvatar(r.Context(), user.ID, uploaded.URL)
	default:
		updated, err = h.users.UpdateCoverImage(r.Context(), user.ID, uploaded.URL)
	}
	if err != nil {
		if removeErr := h.media.Remove(r.Context(), uploaded.Key); removeErr != nil {
			err = errors.Join(err, removeErr)
		}
		return err
	}

	// Event delivery never fails the request.
	if err := h.media.Announce(r.Context(), user.ID, kind, uploaded); err != nil {
		log.Printf("announce %s upload: %v", kind, err)
	}

	updated.PasswordHash = ""
	updated.RefreshToken = ""
	respondData(w, http.StatusOK, updated, message)
	return nil
}

// imageFile is one uploaded image from a multipart form.
type imageFile struct {
	filename    string
	contentType string
	data        []byte
}

// formImage reads a single image file from the named form field. The
// second return reports whether the field was present at all.
func formImage(r *http.Request, field string) (imageFile, bool, error) {
	if r.MultipartForm == nil {
		return imageFile{}, false, nil
	}

	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return imageFile{}, false, nil
	}
	if len(files) > 1 {
		return imageFile{}, false, errBadRequest("only one " + field + " file is allowed")
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return imageFile{}, false, errBadRequest("failed to read " + field + " file")
	}

	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		return imageFile{}, false, errBadRequest(err.Error())
	}

	return imageFile{
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		data:        data,
	}, true, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

// parseHistoryWindow parses optional ?page and ?limit parameters.
// Absent limit means the full sequence.
func parseHistoryWindow(r *http.Request) (offset, limit int, err error) {
	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		return 0, 0, nil
	}

	limit, err = strconv.Atoi(rawLimit)
	if err != nil || limit < 1 {
		return 0, 0, errors.New("invalid limit")
	}

	page := 1
	if rawPage := strings.TrimSpace(r.URL.Query().Get("page")); rawPage != "" {
		page, err = strconv.Atoi(rawPage)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}

	return (page - 1) * limit, limit, nil
}
