// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/soothill/haptic-bridge/pkg/errors"
)

// VibrateRequest carries the parameters of a vibrate command. The HTTP layer
// rejects out-of-range values; the manager clamps whatever reaches it.
type VibrateRequest struct {
	Speed    float64  `validate:"gte=0,lte=1"`
	Position *float64 `validate:"omitempty,gte=0,lte=1"`
	Duration float64  `validate:"gte=0"` // seconds, 0 = no limit
}

// LinearRequest carries the parameters of a linear move command.
type LinearRequest struct {
	Position float64 `validate:"gte=0,lte=1"`
	Duration int     `validate:"gte=0"` // milliseconds
}

// DeviceSelectionRequest selects the active device by list index.
type DeviceSelectionRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

// parseFloatParam reads an optional float query parameter.
func parseFloatParam(values url.Values, key string, fallback float64) (float64, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.NewValidationError(key, raw, "must be a number")
	}
	return parsed, nil
}

// parseOptionalFloatParam reads an optional float query parameter with no
// fallback; absent means nil.
func parseOptionalFloatParam(values url.Values, key string) (*float64, error) {
	raw := values.Get(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperrors.NewValidationError(key, raw, "must be a number")
	}
	return &parsed, nil
}

// parseIntParam reads an optional integer query parameter.
func parseIntParam(values url.Values, key string, fallback int) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(key, raw, "must be an integer")
	}
	return parsed, nil
}

// validateStruct runs validator tags and converts the first failure into the
// bridge's ValidationError kind.
func (s *Server) validateStruct(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.NewValidationError(
			strings.ToLower(fe.Field()),
			fe.Value(),
			fmt.Sprintf("failed %q constraint", fe.Tag()),
		)
	}
	return apperrors.NewValidationError("request", nil, err.Error())
}
