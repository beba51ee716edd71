package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/vidtube/apiserver/internal/services"
	"github.com/vidtube/apiserver/internal/store"
	"github.com/vidtube/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "currentUser"

// APIResponse is the uniform success envelope.
type APIResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// APIErrorResponse is the uniform error envelope.
type APIErrorResponse struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

// apiError carries an HTTP status alongside a message so a handler can
// pin the transport mapping for a failure.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.message
}

func errBadRequest(message string) error {
	return &apiError{status: http.StatusBadRequest, message: message}
}

func errUnauthorized(message string) error {
	return &apiError{status: http.StatusUnauthorized, message: message}
}

// handlerFunc is a handler that reports failure instead of writing it.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle wraps a handlerFunc with the single error boundary: any
// returned error is translated to the error envelope exactly once, so
// handlers never format failures inline.
func handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			respondError(w, err)
		}
	}
}

func respondError(w http.ResponseWriter, err error) {
	var status int
	message := err.Error()

	var apiErr *apiError
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.status
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidRefreshToken):
		status = http.StatusUnauthorized
	case errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		message = "internal server error"
		log.Printf("handler error: %v", err)
	}

	writeJSON(w, status, APIErrorResponse{
		StatusCode: status,
		Message:    message,
		Success:    false,
		Errors:     []string{},
	})
}

func respondData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, APIResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// withUser attaches the authenticated identity to the request context.
func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// currentUser returns the identity attached by the session middleware.
func currentUser(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, errUnauthorized("unauthorized")
	}
	return user, nil
}

// accessTokenFromRequest extracts the bearer token, preferring the
// accessToken cookie over the Authorization header.
func accessTokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing token")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization header")
	}
	return token, nil
}
