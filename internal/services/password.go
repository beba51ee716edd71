package services

import "golang.org/x/crypto/bcrypt"

// HashPassword derives the stored salted hash for a plaintext password.
// It is the only place plaintext crosses into persisted form; the store
// layer never receives anything but the hash, so a value can never be
// hashed twice on its way to a save.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether candidate matches the stored hash.
// A mismatch is a false return, never an error.
func VerifyPassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
