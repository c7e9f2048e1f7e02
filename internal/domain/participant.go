// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type ParticipantID string

// ParticipantInfo is the server's view of one room member.
type ParticipantInfo struct {
	ID      ParticipantID `json:"id"`
	Name    string        `json:"name"`
	IsOwner bool          `json:"isOwner"`
}

func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}

// ScreenShareName derives the display name of the screen-share identity.
func ScreenShareName(name, suffix string) string {
	return name + suffix
}
