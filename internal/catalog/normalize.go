package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// StringList is a list column stored in whatever shape the catalog was loaded
// with: a JSON array, a JSON scalar, a Postgres text array or comma-separated text.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*l = StringList{}
	case []byte:
		*l = ParseList(string(v))
	case string:
		*l = ParseList(v)
	case []string:
		*l = cleanList(v)
	default:
		return fmt.Errorf("catalog: unsupported list column type %T", value)
	}
	return nil
}

// Value encodes the list as a JSON array.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Strings returns the list as a non-nil slice.
func (l StringList) Strings() []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}

// ParseList decodes a stored list field into trimmed, non-empty elements.
func ParseList(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []string{}
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return fromJSON(decoded, trimmed)
	}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if elements, err := parseTextArray(trimmed); err == nil {
			return elements
		}
	}

	return cleanList(strings.Split(trimmed, ","))
}

func fromJSON(decoded any, raw string) []string {
	switch v := decoded.(type) {
	case nil:
		return []string{}
	case []any:
		elements := make([]string, 0, len(v))
		for _, element := range v {
			elements = append(elements, scalarText(element))
		}
		return cleanList(elements)
	case map[string]any:
		// "{}" is both an empty JSON object and an empty Postgres array.
		if len(v) == 0 {
			return []string{}
		}
		return cleanList([]string{raw})
	default:
		return cleanList([]string{scalarText(v)})
	}
}

func scalarText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// parseTextArray decodes a Postgres text-array literal such as {a,"b c",NULL}.
func parseTextArray(literal string) ([]string, error) {
	typeMap := pgtype.NewMap()
	var elements []pgtype.Text
	if err := typeMap.Scan(pgtype.TextArrayOID, pgtype.TextFormatCode, []byte(literal), &elements); err != nil {
		return nil, err
	}
	values := make([]string, 0, len(elements))
	for _, element := range elements {
		if element.Valid {
			values = append(values, element.String)
		}
	}
	return cleanList(values), nil
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}

// EntranceExam is the entrance examination window and coverage of a college.
type EntranceExam struct {
	DateStart string `json:"exam_date_start"`
	DateEnd   string `json:"exam_date_end"`
	Coverage  string `json:"exam_coverage"`
}

// Scan implements sql.Scanner. Unparseable or empty values yield a zero exam.
func (e *EntranceExam) Scan(value any) error {
	*e = EntranceExam{}
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("catalog: unsupported entrance exam column type %T", value)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var decoded EntranceExam
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	*e = decoded
	return nil
}

// Value encodes the exam as a JSON object.
func (e EntranceExam) Value() (driver.Value, error) {
	encoded, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}
