package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	sessionFormatVersionCurrent = 1
	// records written before the envelope carried a version decode as v1
	sessionFormatVersionLegacy = 0
)

var errUnsupportedSchema = errors.New("unsupported session schema version")

type wireSession struct {
	SchemaVersion int      `json:"schemaVersion"`
	ID            string   `json:"id"`
	UserID        string   `json:"userId"`
	Email         string   `json:"email"`
	Fullname      string   `json:"fullname"`
	AvatarURL     *string  `json:"avatarUrl"`
	Username      *string  `json:"username"`
	Roles         []string `json:"roles"`
	CreatedAt     int64    `json:"createdAt"`
	ExpiresAt     int64    `json:"expiresAt"`
}

// Encode serializes s into the JSON document stored in Redis.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	if s.ID == "" || s.UserID == "" {
		return nil, errors.New("session id and user id are required")
	}
	return json.Marshal(wireSession{
		SchemaVersion: sessionFormatVersionCurrent,
		ID:            s.ID,
		UserID:        s.UserID,
		Email:         s.Email,
		Fullname:      s.Fullname,
		AvatarURL:     s.AvatarURL,
		Username:      s.Username,
		Roles:         s.Roles,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
	})
}

// Decode parses a stored session document.
func Decode(data []byte) (*Session, error) {
	var w wireSession
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	switch w.SchemaVersion {
	case sessionFormatVersionLegacy, sessionFormatVersionCurrent:
	default:
		return nil, fmt.Errorf("%w: %d", errUnsupportedSchema, w.SchemaVersion)
	}

	if w.ID == "" || w.UserID == "" || w.ExpiresAt <= 0 {
		return nil, errors.New("decode session: missing required field")
	}

	return &Session{
		ID:        w.ID,
		UserID:    w.UserID,
		Email:     w.Email,
		Fullname:  w.Fullname,
		AvatarURL: w.AvatarURL,
		Username:  w.Username,
		Roles:     w.Roles,
		CreatedAt: w.CreatedAt,
		ExpiresAt: w.ExpiresAt,
	}, nil
}
