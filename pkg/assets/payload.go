package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Payload is a decoded JSON request body, keyed by field name
type Payload map[string]json.RawMessage

// String returns the string value of key. ok is false when the key is
// absent, null or not a string.
func (p Payload) String(key string) (value string, ok bool) {
	raw, found := p[key]
	if !found || isNull(raw) {
		return "", false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// Has reports whether key is present in the payload, even as null
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Apply writes the payload onto a. Writable fields missing from the payload
// keep their current value, for full and partial updates alike. Read-only
// fields are ignored. The asset is only modified when the whole payload is
// valid.
func (p Payload) Apply(a *Asset) error {
	next := *a
	errs := FieldErrors{}

	for _, f := range writableFields() {
		raw, found := p[f.name]
		if !found {
			continue
		}
		if err := decodeField(&next, f, raw); err != "" {
			errs.Add(f.name, err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	*a = next
	return nil
}

// decodeField sets one field from raw JSON and returns a validation message
// on failure
func decodeField(a *Asset, f *field, raw json.RawMessage) string {
	switch f.kind {
	case kindText:
		if isNull(raw) {
			*f.text(a) = nil
			return ""
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "Not a valid string."
		}
		if f.maxLen > 0 && utf8.RuneCountInString(s) > f.maxLen {
			return fmt.Sprintf("Ensure this field has no more than %d characters.", f.maxLen)
		}
		if choices, ok := Choices[f.name]; ok && s != "" && !hasValue(choices, s) {
			return fmt.Sprintf("%q is not a valid choice.", s)
		}
		*f.text(a) = &s

	case kindBool:
		var b bool
		if isNull(raw) || json.Unmarshal(raw, &b) != nil {
			return "Must be a valid boolean."
		}
		*f.flag(a) = b

	case kindNullBool:
		if isNull(raw) {
			*f.nullFlag(a) = nil
			return ""
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "Must be a valid boolean."
		}
		*f.nullFlag(a) = &b

	case kindSet:
		if isNull(raw) {
			*f.set(a) = []string{}
			return ""
		}
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return "Expected a list of items."
		}
		choices := Choices[f.name]
		set := make([]string, 0, len(values))
		for _, v := range values {
			if !hasValue(choices, v) {
				return fmt.Sprintf("%q is not a valid choice.", v)
			}
			if !hasValue(set, v) {
				set = append(set, v)
			}
		}
		*f.set(a) = set
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func hasValue(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
