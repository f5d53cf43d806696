package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Strings is a string list stored as a JSON text column.
type Strings []string

func (s Strings) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Strings) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Strings", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(s))
}

// JSONMap is a JSON object stored as a text column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	out := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*m = out
	return nil
}

// Clone returns a shallow copy that is never nil.
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// All lists every model for migrations.
func All() []any {
	return []any{
		&User{},
		&Session{},
		&LoginAttempt{},
		&TwoFactorChallenge{},
		&PasswordReset{},
		&Address{},
		&Agent{},
		&Acquirer{},
		&Campaign{},
		&Prospect{},
		&Merchant{},
		&Location{},
		&PdfForm{},
		&PdfFormField{},
		&PdfFormSubmission{},
		&DashboardWidgetPreference{},
		&Alert{},
	}
}
