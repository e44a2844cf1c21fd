// Package validate implements C4 Validator: pure functions over strings,
// generalized from the teacher's internal/pkg/utils Validator/
// ValidateUsername/ValidateRoomName/ValidateMessageContent/SanitizeString
// helpers and retargeted at spec.md §3's entity regexes.
package validate

import (
	"regexp"
	"unicode/utf8"
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	roomNameRegex = regexp.MustCompile(`^[A-Za-z0-9_\- ]+$`)
)

const (
	UsernameMinLen = 2
	UsernameMaxLen = 30
	RoomNameMinLen = 3
	RoomNameMaxLen = 50
	// ContentMaxLen matches model.MaxContentLength.
	ContentMaxLen = 4096
)

// Username reports whether value matches spec.md §3's User.username shape.
func Username(value string) bool {
	n := utf8.RuneCountInString(value)
	if n < UsernameMinLen || n > UsernameMaxLen {
		return false
	}
	return usernameRegex.MatchString(value)
}

// RoomName reports whether value matches spec.md §3's Room.name shape.
func RoomName(value string) bool {
	n := utf8.RuneCountInString(value)
	if n < RoomNameMinLen || n > RoomNameMaxLen {
		return false
	}
	return roomNameRegex.MatchString(value)
}

// ContentLength reports whether sanitized content fits the §3 cap.
func ContentLength(value string) bool {
	return utf8.RuneCountInString(value) <= ContentMaxLen
}
