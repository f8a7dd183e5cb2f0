// Package domain contains signaling entities without transport logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxIDLen = 64

var (
	ErrIDEmpty   = errors.New("id empty")
	ErrIDTooLong = errors.New("id too long")
)

type (
	ClientID string
	RoomID   string
)

// NewClientID is used when the caller did not pick an id for itself.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func ParseClientID(raw string) (ClientID, error) {
	if err := validateID(raw); err != nil {
		return "", err
	}
	return ClientID(raw), nil
}

func ParseRoomID(raw string) (RoomID, error) {
	if err := validateID(raw); err != nil {
		return "", err
	}
	return RoomID(raw), nil
}

func validateID(raw string) error {
	if len(raw) == 0 {
		return ErrIDEmpty
	}
	if len(raw) > MaxIDLen {
		return ErrIDTooLong
	}
	return nil
}
