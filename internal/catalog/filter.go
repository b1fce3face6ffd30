package catalog

import (
	"strings"

	"github.com/Masterminds/squirrel"
)

// Filter narrows a public listing. Zero values match everything.
type Filter struct {
	Query  string
	Status string
	Type   string
}

// whereClause renders the SQL-side predicates for kind. Status is matched after
// normalization in Go because stored values are free text.
func (f Filter) whereClause(kind Kind) (string, []any, error) {
	conditions := squirrel.And{}
	if query := strings.TrimSpace(f.Query); query != "" {
		conditions = append(conditions, squirrel.Like{"LOWER(name)": "%" + strings.ToLower(query) + "%"})
	}
	if entityType := strings.TrimSpace(f.Type); entityType != "" && kind.TypeColumn != "" {
		conditions = append(conditions, squirrel.Eq{"LOWER(" + kind.TypeColumn + ")": strings.ToLower(entityType)})
	}
	if len(conditions) == 0 {
		return "", nil, nil
	}
	return conditions.ToSql()
}

func (f Filter) matchesStatus(status Status) bool {
	if strings.TrimSpace(f.Status) == "" {
		return true
	}
	return ParseStatus(f.Status) == status
}
