package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONColumn stores a typed value as a JSON document. Valid is false for SQL NULL.
type JSONColumn[T any] struct {
	V     T
	Valid bool
}

// NewJSONColumn wraps v as a non-null column value.
func NewJSONColumn[T any](v T) JSONColumn[T] {
	return JSONColumn[T]{V: v, Valid: true}
}

func (c JSONColumn[T]) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	b, err := json.Marshal(c.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *JSONColumn[T]) Scan(value any) error {
	b, err := columnBytes(value)
	if err != nil {
		return fmt.Errorf("JSONColumn: %w", err)
	}
	var zero T
	c.V = zero
	c.Valid = len(b) > 0
	if !c.Valid {
		return nil
	}
	return json.Unmarshal(b, &c.V)
}

func columnBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("expected []byte or string, got %T", value)
	}
}
