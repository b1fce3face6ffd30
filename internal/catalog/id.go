package catalog

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const maxIdentifierLength = 190

// ErrInvalidEntityID indicates that an entity identifier is empty or exceeds storage bounds.
var ErrInvalidEntityID = errors.New("catalog: invalid entity id")

// EntityID is the canonical string form of a catalog key. Stored keys may be
// integers or strings; both scan into the same decimal or textual form.
type EntityID string

// NewEntityID validates raw input and returns an EntityID.
func NewEntityID(rawInput string) (EntityID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntityID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntityID, maxIdentifierLength)
	}
	return EntityID(trimmed), nil
}

// String returns the underlying string identifier.
func (id EntityID) String() string {
	return string(id)
}

// Scan implements sql.Scanner for integer and text key columns.
func (id *EntityID) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*id = ""
	case int64:
		*id = EntityID(strconv.FormatInt(v, 10))
	case int32:
		*id = EntityID(strconv.FormatInt(int64(v), 10))
	case float64:
		*id = EntityID(strconv.FormatFloat(v, 'f', -1, 64))
	case []byte:
		*id = EntityID(strings.TrimSpace(string(v)))
	case string:
		*id = EntityID(strings.TrimSpace(v))
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrInvalidEntityID, value)
	}
	return nil
}

// Value implements driver.Valuer.
func (id EntityID) Value() (driver.Value, error) {
	return string(id), nil
}

// MarshalJSON always encodes the identifier as a JSON string.
func (id EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON string or a JSON number.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*id = EntityID(strings.TrimSpace(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEntityID, string(trimmed))
	}
	*id = EntityID(number.String())
	return nil
}
