package config

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Setting names as they appear in the environment and in KeyError.Field.
const (
	FieldTestSecretKey      = "STRIPE_TEST_SECRET_KEY"
	FieldTestPublishableKey = "STRIPE_TEST_PUBLISHABLE_KEY"
	FieldLiveSecretKey      = "STRIPE_LIVE_SECRET_KEY"
	FieldLivePublishableKey = "STRIPE_LIVE_PUBLISHABLE_KEY"
)

// SanitizeKey trims surrounding whitespace and escapes markup characters, the
// same normalisation applied before a key is saved.
func SanitizeKey(raw string) string {
	return html.EscapeString(strings.TrimSpace(raw))
}

// ValidateKeyFormat reports whether key looks like a Stripe API key once
// sanitized: one or more ASCII letters, digits or underscores.
func ValidateKeyFormat(key string) bool {
	k := SanitizeKey(key)
	if k == "" {
		return false
	}
	return keyPattern.MatchString(k)
}

// KeyError names a key setting that failed validation.
type KeyError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e KeyError) Error() string { return e.Message }

// ValidateGatewayKeys checks all four keys and returns one KeyError per bad key,
// in a stable order. A nil slice means every key is well formed.
func ValidateGatewayKeys(g GatewayConfig) []KeyError {
	fields := []struct {
		name  string
		value string
	}{
		{FieldTestSecretKey, g.TestSecretKey},
		{FieldTestPublishableKey, g.TestPublishableKey},
		{FieldLiveSecretKey, g.LiveSecretKey},
		{FieldLivePublishableKey, g.LivePublishableKey},
	}

	var errs []KeyError
	for _, f := range fields {
		if !ValidateKeyFormat(f.value) {
			errs = append(errs, KeyError{
				Field:   f.name,
				Message: fmt.Sprintf("%s does not appear to be a valid stripe key", f.name),
			})
		}
	}
	return errs
}
