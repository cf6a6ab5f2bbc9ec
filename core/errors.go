package transcript

import "errors"

var (
	ErrEmptyText         = errors.New("exchange text is empty")
	ErrInvalidRole       = errors.New("exchange role is invalid")
	ErrExtractionFailure = errors.New("agent stopped speaking without recoverable text")
	ErrSessionClosed     = errors.New("session closed")
)
