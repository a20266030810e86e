package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONBlob is an opaque JSON payload stored in a Postgres JSONB column.
//
// Form schemas, form responses, and SOP suggestion caches are modeled this
// way: the core stores and echoes them without interpreting their shape.
// Only the export path (internal/export) inspects a template's schema.
type JSONBlob json.RawMessage

// Scan implements sql.Scanner.
func (b *JSONBlob) Scan(value interface{}) error {
	if value == nil {
		*b = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*b = append((*b)[:0], v...)
		return nil
	case string:
		*b = JSONBlob(v)
		return nil
	default:
		return nil
	}
}

// Value implements driver.Valuer.
func (b JSONBlob) Value() (driver.Value, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return []byte(b), nil
}

// MarshalJSON passes the raw payload through unchanged.
func (b JSONBlob) MarshalJSON() ([]byte, error) {
	if len(b) == 0 {
		return []byte("null"), nil
	}
	return b, nil
}

// UnmarshalJSON stores the raw payload unchanged.
func (b *JSONBlob) UnmarshalJSON(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}
