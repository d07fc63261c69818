package records

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxNameLength       = 256
	MaxPassphraseLength = 1024
	MaxDataKeyLength    = 128
	MaxDataKeys         = 64
	MaxDataSize         = 64 << 10
)

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationErrorf("name must not be empty")
	}
	if len(name) > MaxNameLength {
		return validationErrorf("name exceeds maximum length of %d", MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return validationErrorf("name contains invalid UTF-8")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return validationErrorf("name contains control character")
		}
	}
	return nil
}

func validatePassphrase(passphrase string) error {
	if passphrase == "" {
		return validationErrorf("passphrase must not be empty")
	}
	if len(passphrase) > MaxPassphraseLength {
		return validationErrorf("passphrase exceeds maximum length of %d", MaxPassphraseLength)
	}
	if !utf8.ValidString(passphrase) {
		return validationErrorf("passphrase contains invalid UTF-8")
	}
	return nil
}

// validateData checks that blob is a JSON object of string (or null)
// values. An empty blob is accepted and stored as an empty object.
func validateData(blob string) error {
	if len(blob) > MaxDataSize {
		return validationErrorf("data size %d exceeds maximum of %d bytes", len(blob), MaxDataSize)
	}
	if blob == "" {
		return nil
	}
	var values map[string]*string
	if err := json.Unmarshal([]byte(blob), &values); err != nil {
		return validationErrorf("data must be a JSON object of strings")
	}
	if len(values) > MaxDataKeys {
		return validationErrorf("data key count %d exceeds maximum of %d", len(values), MaxDataKeys)
	}
	for key := range values {
		if key == "" {
			return validationErrorf("data key must not be empty")
		}
		if len(key) > MaxDataKeyLength {
			return validationErrorf("data key exceeds maximum length of %d", MaxDataKeyLength)
		}
		for _, r := range key {
			if unicode.IsControl(r) {
				return validationErrorf("data key contains control character")
			}
		}
	}
	return nil
}
