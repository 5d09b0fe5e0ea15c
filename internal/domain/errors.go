package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrCredential         = errors.New("missing credential")
	ErrUpload             = errors.New("upload error")
	ErrAPI                = errors.New("api error")
	ErrPersistence        = errors.New("persistence error")
	ErrGenerationInFlight = errors.New("generation already in flight")
)

// ErrMissingMask flags an inpainting request submitted without a mask. It is
// surfaced to the caller as a warning, never as a terminal failure.
var ErrMissingMask = errors.New("mask image missing, edit applies to the full image")
