// Package catalog reads college and scholarship master records into public card and detail views.
package catalog

// Kind configures one trackable entity type: where its catalog rows live,
// which table holds its tracker rows, and how clients name its identifier.
type Kind struct {
	Name         string
	Path         string
	CatalogTable string
	TrackerTable string
	EntityField  string
	TypeColumn   string
}

var (
	// CollegeKind describes colleges.
	CollegeKind = Kind{
		Name:         "college",
		Path:         "colleges",
		CatalogTable: "colleges",
		TrackerTable: "user_college_trackers",
		EntityField:  "collegeId",
		TypeColumn:   "university_type",
	}
	// ScholarshipKind describes scholarships.
	ScholarshipKind = Kind{
		Name:         "scholarship",
		Path:         "scholarships",
		CatalogTable: "scholarships",
		TrackerTable: "user_scholarship_trackers",
		EntityField:  "scholarshipId",
		TypeColumn:   "scho_type",
	}
)

// Kinds lists every supported kind in routing order.
func Kinds() []Kind {
	return []Kind{CollegeKind, ScholarshipKind}
}
