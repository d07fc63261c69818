// Package account models a passphrase-addressed account as the client sees
// it: profile fields, keyed secret values, and active/banned status.
package account

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
)

// Well-known data keys every new account starts with.
const (
	KeyGeminiAPIKey = "GEMINI_API_KEY"
	KeyGitHubToken  = "GITHUB_TOKEN"
)

// Data maps key names to secret values. An unset key reads as "".
type Data map[string]string

// Clone returns a copy of d that shares no storage with it.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

// LogValue keeps secret values out of structured logs.
func (d Data) LogValue() slog.Value {
	return slog.IntValue(len(d))
}

// DefaultData returns the data a new account is created with: the
// well-known keys set to "", overlaid by extra.
func DefaultData(extra Data) Data {
	d := Data{
		KeyGeminiAPIKey: "",
		KeyGitHubToken:  "",
	}
	for k, v := range extra {
		d[k] = v
	}
	return d
}

// EncodeData serializes d into the single JSON string the record store carries.
func EncodeData(d Data) (string, error) {
	if d == nil {
		d = Data{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding account data: %w", err)
	}
	return string(b), nil
}

// DecodeData parses the JSON string blob from the record store. An empty
// blob decodes to empty data; JSON null values decode to "".
func DecodeData(blob string) (Data, error) {
	d := Data{}
	if blob == "" || blob == "null" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(blob), &d); err != nil {
		return nil, fmt.Errorf("decoding account data: %w", err)
	}
	return d, nil
}

// Account is the authenticated account's state.
type Account struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Data   Data   `json:"data"`
	Status bool   `json:"status"`
}

// Banned reports whether the account has been banned. Banned accounts can
// still be read but every mutation is refused.
func (a Account) Banned() bool {
	return !a.Status
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	a.Data = a.Data.Clone()
	return a
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name *string
	Data Data
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Data == nil
}

// Apply returns a copy of a with p applied.
func (p Patch) Apply(a Account) Account {
	out := a.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Data != nil {
		out.Data = p.Data.Clone()
	}
	return out
}

// Diff returns the patch that turns original into edited. Only fields that
// differ are set.
func Diff(original, edited Account) Patch {
	var p Patch
	if original.Name != edited.Name {
		name := edited.Name
		p.Name = &name
	}
	if dataChanged(original.Data, edited.Data) {
		p.Data = edited.Data.Clone()
	}
	return p
}

// Changed reports whether edited differs from original in any tracked
// field: the name, or any data key that is missing from one side or holds a
// different value.
func Changed(original, edited Account) bool {
	return original.Name != edited.Name || dataChanged(original.Data, edited.Data)
}

func dataChanged(a, b Data) bool {
	if len(a) != len(b) {
		return true
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return true
		}
	}
	return false
}

// MaskPassphrase shows only the first and last eight characters of p.
func MaskPassphrase(p string) string {
	r := []rune(p)
	if len(r) <= 16 {
		return "********"
	}
	return string(r[:8]) + "..." + string(r[len(r)-8:])
}
