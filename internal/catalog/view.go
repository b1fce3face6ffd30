package catalog

// Card is the public list projection of a catalog entity. Exactly one of the
// kind-specific summaries is set; its fields are flattened into the JSON object.
type Card struct {
	ID               EntityID `json:"id"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Status           Status   `json:"application_status"`
	ApplicationStart string   `json:"application_start"`
	ApplicationEnd   string   `json:"application_end"`
	LogoURL          string   `json:"logo_url"`
	*CollegeSummary
	*ScholarshipSummary
}

// CollegeSummary holds the college-only card fields.
type CollegeSummary struct {
	UniversityType string `json:"university_type"`
	TuitionFee     string `json:"tuition_fee"`
}

// ScholarshipSummary holds the scholarship-only card fields.
type ScholarshipSummary struct {
	ScholarshipType string `json:"scho_type"`
	Benefits        string `json:"benefits"`
}

// Entity is the detail projection of a catalog entity with normalized lists.
type Entity struct {
	ID               EntityID `json:"id"`
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Location         string   `json:"location"`
	Status           Status   `json:"application_status"`
	ApplicationStart string   `json:"application_start"`
	ApplicationEnd   string   `json:"application_end"`
	Requirements     []string `json:"requirements"`
	OfficialLink     string   `json:"official_link"`
	ContactNum       string   `json:"contact_num"`
	Email            string   `json:"email"`
	LogoURL          string   `json:"logo_url"`
	HeaderImageURL   string   `json:"header_image_url"`
	*CollegeDetails
	*ScholarshipDetails
}

// CollegeDetails holds the college-only detail fields.
type CollegeDetails struct {
	UniversityType string       `json:"university_type"`
	TuitionFee     string       `json:"tuition_fee"`
	EntranceExam   EntranceExam `json:"entrance_exam"`
	ReviewLinks    []string     `json:"review_links"`
	MockExam       []string     `json:"mock_exam"`
	TopPrograms    []string     `json:"top_programs"`
}

// ScholarshipDetails holds the scholarship-only detail fields.
type ScholarshipDetails struct {
	ScholarshipType string   `json:"scho_type"`
	Benefits        string   `json:"benefits"`
	Guides          []string `json:"guides"`
	RecoLinks       []string `json:"reco_links"`
	PrioPrograms    []string `json:"prio_programs"`
}
