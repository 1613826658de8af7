package domain

import "regexp"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@-]{0,127}$`)

// ValidateUserID checks that a user id is usable as a single path segment
// and blob-store key component.
func ValidateUserID(userID string) error {
	if !userIDPattern.MatchString(userID) || userID == "." || userID == ".." {
		return ErrInvalidUserID
	}
	return nil
}

// UserPrefix returns the blob-store prefix owning every object of a user.
func UserPrefix(userID string) string {
	return "users/" + userID + "/"
}

// DocumentKey returns the blob-store key of an uploaded PDF.
func DocumentKey(userID, filename string) string {
	return UserPrefix(userID) + "pdfs/" + filename
}

// IndexKey returns the blob-store key of one file of the user's index.
func IndexKey(userID, filename string) string {
	return UserPrefix(userID) + "faiss/" + filename
}
