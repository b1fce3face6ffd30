package catalog

import "strings"

// Status is the normalized application status of a catalog entity.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusComingSoon Status = "coming_soon"
)

// ParseStatus maps free-text status values onto the known statuses.
// Empty input defaults to open. Unrecognized values are lower-cased with
// spaces and hyphens folded to underscores.
func ParseStatus(raw string) Status {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.Join(strings.Fields(normalized), "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	switch normalized {
	case "":
		return StatusOpen
	case "open", "opened", "ongoing":
		return StatusOpen
	case "closed", "close":
		return StatusClosed
	case "coming_soon", "comingsoon", "upcoming", "soon":
		return StatusComingSoon
	default:
		return Status(normalized)
	}
}

// Known reports whether the status is one of the three canonical values.
func (s Status) Known() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusComingSoon:
		return true
	default:
		return false
	}
}
