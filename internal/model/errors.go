package model

import "errors"

var (
	ErrMissingRequiredArgument = errors.New("missing required argument")
	ErrInvalidModelReference   = errors.New("invalid model reference")
	ErrModelNotFound           = errors.New("model not found")
)
