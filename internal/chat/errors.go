package chat

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not resolve
	ErrSessionNotFound = errors.New("chat: session not found")

	// ErrInvalidRole is returned for roles outside user/assistant/admin
	ErrInvalidRole = errors.New("chat: invalid message role")

	// ErrEmptyContent is returned when a message body is blank
	ErrEmptyContent = errors.New("chat: message content is required")

	// ErrIncompleteBooking is returned when a pending call lacks a phone number or time
	ErrIncompleteBooking = errors.New("chat: pending call requires phone number and booked call")

	// ErrHumanOwned is returned when a bot-side update meets a claimed or escalated session
	ErrHumanOwned = errors.New("chat: session is handled by a human")

	ErrNoBookedCall      = errors.New("chat: no booked call")
	ErrInvalidCallStatus = errors.New("chat: invalid call status")
)
