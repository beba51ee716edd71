package types

import "time"

// User represents an account in the system.
// It contains identity, media, and session metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	// It is stored lowercased and trimmed.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// FullName is the user's display name.
	FullName string `json:"fullName" db:"full_name"`

	// AvatarURL is the object-storage URL of the user's avatar image.
	AvatarURL string `json:"avatar" db:"avatar_url"`

	// CoverImageURL is the object-storage URL of the optional channel
	// cover image. Empty when the user never uploaded one.
	CoverImageURL string `json:"coverImage,omitempty" db:"cover_image_url"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken is the single currently valid refresh token for the
	// user, or empty when no session is active. A presented refresh
	// token must match this value exactly to be accepted.
	// This field is never exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Owner is the reduced projection of a user embedded in other records,
// such as the owner of a watched video.
type Owner struct {
	FullName string `json:"fullName" db:"full_name"`
	Username string `json:"username" db:"username"`
	Avatar   string `json:"avatar" db:"avatar_url"`
}
