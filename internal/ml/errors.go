package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a history is too short for an operation.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrModelUnavailable is returned when no model could produce an output.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrNotTrained is returned by operations that need a trained model.
	ErrNotTrained = errors.New("model not trained")
	// ErrNotConverged is returned when training ended above its loss target.
	// The trained state is kept.
	ErrNotConverged = errors.New("training did not converge")
	// ErrUnknownModel is returned for an unrecognised model name.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInvalidWeights is returned when a weight update would break the
	// normalisation invariant.
	ErrInvalidWeights = errors.New("invalid weights")
)

// InsufficientDataError describes how much history a component needed.
type InsufficientDataError struct {
	Component string
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: have %d draws, need %d", e.Component, e.Have, e.Need)
}

// Unwrap lets errors.Is match ErrInsufficientData.
func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}
