package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// passwordCost is the bcrypt work factor for attendee and organizer accounts.
const passwordCost = bcrypt.DefaultCost

// HashPassword hashes an account password with bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(bytes), err
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
