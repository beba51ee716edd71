package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vidtube/apiserver/internal/services"
	"github.com/vidtube/apiserver/types"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	maxMultipartMemory = 32 << 20
	maxImageBytes      = 8 << 20

	formFieldUsername   = "username"
	formFieldEmail      = "email"
	formFieldFullName   = "fullName"
	formFieldPassword   = "password"
	formFieldAvatar     = "avatar"
	formFieldCoverImage = "coverImage"

	mediaKindAvatar = "avatars"
	mediaKindCover  = "covers"
)

// AuthHandler provides the account and session endpoints.
type AuthHandler struct {
	users  *services.UserService
	tokens *services.TokenService
	media  *services.MediaService
}

func NewAuthHandler(users *services.UserService, tokens *services.TokenService, media *services.MediaService) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, media: media}
}

// UserRouter registers the /users routes on the given router.
func UserRouter(
	r chi.Router,
	users *services.UserService,
	tokens *services.TokenService,
	channels *services.ChannelService,
	media *services.MediaService,
) {
	auth := NewAuthHandler(users, tokens, media)
	channel := NewChannelHandler(channels, users, media)

	r.Post("/register", handle(auth.Register))
	r.Post("/login", handle(auth.Login))
	r.Post("/refresh-token", handle(auth.RefreshToken))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Post("/logout", handle(auth.Logout))
		r.Post("/changePassword", handle(auth.ChangePassword))
		r.Get("/getCurrentUser", handle(auth.GetCurrentUser))
		r.Patch("/updateAvatar", handle(channel.UpdateAvatar))
		r.Post("/updateCoverImage", handle(channel.UpdateCoverImage))
		r.Get("/channel/{username}", handle(channel.Profile))
		r.Post("/channel/{username}/subscribe", handle(channel.ToggleSubscription))
		r.Get("/history", handle(channel.WatchHistory))
		r.Post("/history/{videoID}", handle(channel.RecordWatch))
	})
}

// RequireAuth verifies the access token from the accessToken cookie or
// the Authorization header, resolves the user, and attaches the
// sanitized identity to the request context. It never refreshes tokens.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := accessTokenFromRequest(r)
		if err != nil {
			respondError(w, errUnauthorized("no token"))
			return
		}

		claims, err := h.tokens.VerifyAccessToken(tokenString)
		if err != nil {
			respondError(w, errUnauthorized("invalid token"))
			return
		}

		userID, err := services.SubjectID(claims)
		if err != nil {
			respondError(w, errUnauthorized("invalid token"))
			return
		}

		user, err := h.users.GetByID(r.Context(), userID)
		if err != nil {
			respondError(w, errUnauthorized("invalid token"))
			return
		}

		user.PasswordHash = ""
		user.RefreshToken = ""
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Register creates a new account from a multipart form carrying the
// four identity fields plus a required avatar file and an optional
// cover image. Uploads happen before the insert; if the insert fails
// the uploaded objects are deleted again.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return errBadRequest("invalid multipart form")
	}

	input := services.RegisterInput{
		Username: r.FormValue(formFieldUsername),
		Email:    r.FormValue(formFieldEmail),
		FullName: r.FormValue(formFieldFullName),
		Password: r.FormValue(formFieldPassword),
	}
	if strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.Email) == "" ||
		strings.TrimSpace(input.FullName) == "" || strings.TrimSpace(input.Password) == "" {
		return errBadRequest("all fields are required")
	}

	avatar, ok, err := formImage(r, formFieldAvatar)
	if err != nil {
		return err
	}
	if !ok {
		return errBadRequest("avatar is required")
	}

	cover, hasCover, err := formImage(r, formFieldCoverImage)
	if err != nil {
		return err
	}

	uploadedAvatar, err := h.media.UploadImage(r.Context(), mediaKindAvatar, avatar.filename, avatar.contentType, avatar.data)
	if err != nil {
		return err
	}
	input.AvatarURL = uploadedAvatar.URL

	var uploadedCover services.UploadedObject
	if hasCover {
		uploadedCover, err = h.media.UploadImage(r.Context(), mediaKindCover, cover.filename, cover.contentType, cover.data)
		if err != nil {
			h.removeUploads(r, uploadedAvatar.Key)
			return err
		}
		input.CoverImageURL = uploadedCover.URL
	}

	user, err := h.users.Register(r.Context(), input)
	if err != nil {
		h.removeUploads(r, uploadedAvatar.Key, uploadedCover.Key)
		return err
	}

	h.announce(r, user.ID, mediaKindAvatar, uploadedAvatar)
	if hasCover {
		h.announce(r, user.ID, mediaKindCover, uploadedCover)
	}

	respondData(w, http.StatusOK, user, "user created successfully")
	return nil
}

// LoginRequest is the JSON body for POST /users/login.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is the body returned by login and refresh.
type SessionResponse struct {
	User         *types.User `json:"user,omitempty"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Login verifies credentials, issues a token pair, and sets both
// tokens as http-only secure cookies in addition to the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errBadRequest("invalid request body")
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	user, err := h.users.Authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		return err
	}

	pair, err := h.tokens.IssueTokenPair(r.Context(), user.ID)
	if err != nil {
		return err
	}

	setSessionCookies(w, pair, h.tokens.RefreshTTL())
	user.PasswordHash = ""
	user.RefreshToken = ""
	respondData(w, http.StatusOK, SessionResponse{
		User:         &user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "login successful")
	return nil
}

// Logout clears the stored refresh token and expires both cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	if err := h.tokens.Revoke(r.Context(), user.ID); err != nil {
		return err
	}

	clearSessionCookies(w)
	respondData(w, http.StatusOK, nil, "logged out")
	return nil
}

// RefreshRequest is the JSON body for POST /users/refresh-token when
// the token is not presented as a cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates a valid refresh token into a new pair. Every
// verification failure is reported as 401 without distinguishing the
// cause.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) error {
	tokenString := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		tokenString = cookie.Value
	}
	if tokenString == "" {
		var req RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			tokenString = req.RefreshToken
		}
	}
	if tokenString == "" {
		return errBadRequest("refresh token is required")
	}

	pair, err := h.tokens.Rotate(r.Context(), tokenString)
	if err != nil {
		return err
	}

	setSessionCookies(w, pair, h.tokens.RefreshTTL())
	respondData(w, http.StatusOK, SessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "token refreshed")
	return nil
}

// ChangePasswordRequest is the JSON body for POST /users/changePassword.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword verifies the old password and stores the new one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errBadRequest("invalid request body")
	}

	if err := h.users.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	respondData(w, http.StatusOK, nil, "password changed successfully")
	return nil
}

// GetCurrentUser returns the identity resolved by the session middleware.
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r.Context())
	if err != nil {
		return err
	}

	respondData(w, http.StatusOK, user, "current user")
	return nil
}

func (h *AuthHandler) removeUploads(r *http.Request, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := h.media.Remove(r.Context(), key); err != nil {
			log.Printf("remove orphaned upload %s: %v", key, err)
		}
	}
}

func (h *AuthHandler) announce(r *http.Request, userID int64, kind string, obj services.UploadedObject) {
	if err := h.media.Announce(r.Context(), userID, kind, obj); err != nil {
		log.Printf("announce %s upload: %v", kind, err)
	}
}

func setSessionCookies(w http.ResponseWriter, pair services.TokenPair, refreshTTL time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshTTL / time.Second),
	})
}

func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			MaxAge:   -1,
		})
	}
}
