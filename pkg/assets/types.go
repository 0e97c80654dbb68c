package assets

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for assets that do not exist, are soft-deleted or
// are not visible to the requester
var ErrNotFound = errors.New("asset not found")

// Purposes an asset may be held for
const (
	PurposeTeaching                       = "teaching"
	PurposeResearch                       = "research"
	PurposeResearchOrganisational         = "research_organisational"
	PurposeStudentAdministration          = "student_administration"
	PurposeStaffAdministration            = "staff_administration"
	PurposeAlumniSupporterAdministration  = "alumni_supporter_administration"
	PurposeSupplierCustomerAdministration = "supplier_customer_administration"
	PurposeFinancialEstateAdministration  = "financial_estate_administration"
	PurposeGovernanceCompliance           = "governance_compliance"
	PurposeSecurity                       = "security"
	PurposeMarketing                      = "marketing"
	PurposePublicEngagement               = "public_engagement"
	PurposeOther                          = "other"
)

// Answers to the recipients outside the university / EEA questions
const (
	RecipientsYes     = "yes"
	RecipientsNo      = "no"
	RecipientsNotSure = "not_sure"
)

// Storage formats
const (
	StorageDigital = "digital"
	StoragePaper   = "paper"
)

// Choices lists the permitted values of every enumerated field, in display order
var Choices = map[string][]string{
	"purpose": {
		PurposeTeaching, PurposeResearch, PurposeResearchOrganisational,
		PurposeStudentAdministration, PurposeStaffAdministration,
		PurposeAlumniSupporterAdministration, PurposeSupplierCustomerAdministration,
		PurposeFinancialEstateAdministration, PurposeGovernanceCompliance,
		PurposeSecurity, PurposeMarketing, PurposePublicEngagement, PurposeOther,
	},
	"data_subject": {"students", "staff", "alumni", "research", "patients", "supplier", "public"},
	"data_category": {
		"education", "alumni", "contact", "employment", "financial", "social", "visual",
		"research", "medical", "children", "racial", "political", "unions", "religious",
		"health", "sexual", "genetic", "biometric", "criminal",
	},
	"recipients_outside_uni": {RecipientsYes, RecipientsNo, RecipientsNotSure},
	"recipients_outside_eea": {RecipientsYes, RecipientsNo, RecipientsNotSure},
	"retention":              {"<1", ">=1,<=5", ">5,<=10", ">10,<=75", "forever"},
	"risk_type":              {"financial", "operational", "compliance", "reputational", "safety", "none"},
	"storage_format":         {StorageDigital, StoragePaper},
	"paper_storage_security": {"locked_cabinet", "safe", "locked_room", "locked_building", "none"},
	"digital_storage_security": {
		"pwd_controls", "acl", "backup", "encryption", "none",
	},
}

// Asset is a record in the information asset register
type Asset struct {
	ID uuid.UUID `json:"id"`

	Name         *string `json:"name"`
	Department   *string `json:"department"`
	Purpose      *string `json:"purpose"`
	PurposeOther *string `json:"purpose_other"`
	Owner        *string `json:"owner"`
	Private      bool    `json:"private"`
	Research     *bool   `json:"research"`

	PersonalData *bool    `json:"personal_data"`
	DataSubject  []string `json:"data_subject"`
	DataCategory []string `json:"data_category"`

	RecipientsOutsideUni            *string `json:"recipients_outside_uni"`
	RecipientsOutsideUniDescription *string `json:"recipients_outside_uni_description"`
	RecipientsOutsideEEA            *string `json:"recipients_outside_eea"`
	RecipientsOutsideEEADescription *string `json:"recipients_outside_eea_description"`

	Retention *string `json:"retention"`

	RiskType           []string `json:"risk_type"`
	RiskTypeAdditional *string  `json:"risk_type_additional"`

	StorageLocation        *string  `json:"storage_location"`
	StorageFormat          []string `json:"storage_format"`
	PaperStorageSecurity   []string `json:"paper_storage_security"`
	DigitalStorageSecurity []string `json:"digital_storage_security"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`

	// IsComplete is filled in by the database on every read
	IsComplete bool `json:"is_complete"`
}

// DepartmentCode returns the owning institution, or "" when unset
func (a *Asset) DepartmentCode() string {
	if a == nil || a.Department == nil {
		return ""
	}
	return *a.Department
}

// normalizeSets replaces nil set fields with empty ones so they encode as []
func (a *Asset) normalizeSets() {
	for _, s := range []*[]string{
		&a.DataSubject, &a.DataCategory, &a.RiskType,
		&a.StorageFormat, &a.PaperStorageSecurity, &a.DigitalStorageSecurity,
	} {
		if *s == nil {
			*s = []string{}
		}
	}
}

// FieldErrors maps a field name to its validation messages
type FieldErrors map[string][]string

// Add records a message against field
func (e FieldErrors) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("invalid fields:")
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f)
		b.WriteString(" (")
		b.WriteString(strings.Join(e[f], "; "))
		b.WriteString(")")
	}
	return b.String()
}

// Counts are aggregate figures over a set of active assets
type Counts struct {
	Total            int64 `json:"total"`
	Completed        int64 `json:"completed"`
	WithPersonalData int64 `json:"with_personal_data"`
}

func (c *Counts) add(o Counts) {
	c.Total += o.Total
	c.Completed += o.Completed
	c.WithPersonalData += o.WithPersonalData
}

// Stats are the register-wide figures plus a breakdown by department
type Stats struct {
	All           Counts            `json:"all"`
	ByInstitution map[string]Counts `json:"by_institution"`
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
