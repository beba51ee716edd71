package services

import "errors"

// ErrInvalidCredentials is returned when a login identifier does not
// resolve to a user or the password does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidRefreshToken is returned for every refresh-token failure:
// bad signature, expiry, unknown user, or a token superseded by
// rotation. The causes are deliberately not distinguished.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// ValidationError reports missing or blank input fields.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(message string) error {
	return &ValidationError{Message: message}
}
