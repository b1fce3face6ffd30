package catalog

// College models a row of the colleges catalog table.
type College struct {
	ID                EntityID     `gorm:"column:id;primaryKey;size:190;not null"`
	Name              string       `gorm:"column:name;size:255;not null;default:''"`
	Address           string       `gorm:"column:address;type:text"`
	Location          string       `gorm:"column:location;type:text"`
	ApplicationStatus string       `gorm:"column:application_status;size:64"`
	ApplicationStart  string       `gorm:"column:application_start;size:64"`
	ApplicationEnd    string       `gorm:"column:application_end;size:64"`
	Requirements      StringList   `gorm:"column:requirements;type:text"`
	UniversityType    string       `gorm:"column:university_type;size:64"`
	TuitionFee        string       `gorm:"column:tuition_fee;size:128"`
	EntranceExam      EntranceExam `gorm:"column:entrance_exam;type:text"`
	OfficialLink      string       `gorm:"column:official_link;type:text"`
	ReviewLinks       StringList   `gorm:"column:review_links;type:text"`
	MockExam          StringList   `gorm:"column:mock_exam;type:text"`
	TopPrograms       StringList   `gorm:"column:top_programs;type:text"`
	ContactNum        string       `gorm:"column:contact_num;size:64"`
	Email             string       `gorm:"column:email;size:255"`
	LogoURL           string       `gorm:"column:logo_url;type:text"`
	HeaderImageURL    string       `gorm:"column:header_image_url;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (College) TableName() string {
	return CollegeKind.CatalogTable
}

// Card projects the college into its public list view.
func (c *College) Card() Card {
	return Card{
		ID:               c.ID,
		Name:             c.Name,
		Address:          c.Address,
		Status:           ParseStatus(c.ApplicationStatus),
		ApplicationStart: c.ApplicationStart,
		ApplicationEnd:   c.ApplicationEnd,
		LogoURL:          c.LogoURL,
		CollegeSummary: &CollegeSummary{
			UniversityType: c.UniversityType,
			TuitionFee:     c.TuitionFee,
		},
	}
}

// Details projects the college into its detail view.
func (c *College) Details() Entity {
	return Entity{
		ID:               c.ID,
		Name:             c.Name,
		Address:          c.Address,
		Location:         c.Location,
		Status:           ParseStatus(c.ApplicationStatus),
		ApplicationStart: c.ApplicationStart,
		ApplicationEnd:   c.ApplicationEnd,
		Requirements:     c.Requirements.Strings(),
		OfficialLink:     c.OfficialLink,
		ContactNum:       c.ContactNum,
		Email:            c.Email,
		LogoURL:          c.LogoURL,
		HeaderImageURL:   c.HeaderImageURL,
		CollegeDetails: &CollegeDetails{
			UniversityType: c.UniversityType,
			TuitionFee:     c.TuitionFee,
			EntranceExam:   c.EntranceExam,
			ReviewLinks:    c.ReviewLinks.Strings(),
			MockExam:       c.MockExam.Strings(),
			TopPrograms:    c.TopPrograms.Strings(),
		},
	}
}

// Scholarship models a row of the scholarships catalog table.
type Scholarship struct {
	ID                EntityID   `gorm:"column:id;primaryKey;size:190;not null"`
	Name              string     `gorm:"column:name;size:255;not null;default:''"`
	Address           string     `gorm:"column:address;type:text"`
	Location          string     `gorm:"column:location;type:text"`
	ApplicationStatus string     `gorm:"column:application_status;size:64"`
	ApplicationStart  string     `gorm:"column:application_start;size:64"`
	ApplicationEnd    string     `gorm:"column:application_end;size:64"`
	Requirements      StringList `gorm:"column:scho_requirements;type:text"`
	ScholarshipType   string     `gorm:"column:scho_type;size:64"`
	Benefits          string     `gorm:"column:benefits;type:text"`
	OfficialLink      string     `gorm:"column:official_link;type:text"`
	Guides            StringList `gorm:"column:guides;type:text"`
	RecoLinks         StringList `gorm:"column:reco_links;type:text"`
	PrioPrograms      StringList `gorm:"column:prio_programs;type:text"`
	ContactNum        string     `gorm:"column:contact_num;size:64"`
	Email             string     `gorm:"column:email;size:255"`
	LogoURL           string     `gorm:"column:logo_url;type:text"`
	HeaderImageURL    string     `gorm:"column:header_image_url;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (Scholarship) TableName() string {
	return ScholarshipKind.CatalogTable
}

// Card projects the scholarship into its public list view.
func (s *Scholarship) Card() Card {
	return Card{
		ID:               s.ID,
		Name:             s.Name,
		Address:          s.Address,
		Status:           ParseStatus(s.ApplicationStatus),
		ApplicationStart: s.ApplicationStart,
		ApplicationEnd:   s.ApplicationEnd,
		LogoURL:          s.LogoURL,
		ScholarshipSummary: &ScholarshipSummary{
			ScholarshipType: s.ScholarshipType,
			Benefits:        s.Benefits,
		},
	}
}

// Details projects the scholarship into its detail view.
func (s *Scholarship) Details() Entity {
	return Entity{
		ID:               s.ID,
		Name:             s.Name,
		Address:          s.Address,
		Location:         s.Location,
		Status:           ParseStatus(s.ApplicationStatus),
		ApplicationStart: s.ApplicationStart,
		ApplicationEnd:   s.ApplicationEnd,
		Requirements:     s.Requirements.Strings(),
		OfficialLink:     s.OfficialLink,
		ContactNum:       s.ContactNum,
		Email:            s.Email,
		LogoURL:          s.LogoURL,
		HeaderImageURL:   s.HeaderImageURL,
		ScholarshipDetails: &ScholarshipDetails{
			ScholarshipType: s.ScholarshipType,
			Benefits:        s.Benefits,
			Guides:          s.Guides.Strings(),
			RecoLinks:       s.RecoLinks.Strings(),
			PrioPrograms:    s.PrioPrograms.Strings(),
		},
	}
}
