package model

import "strings"

// Taxonomy is the semantic type of a form field.
type Taxonomy string

const (
	TaxonomyUnknown Taxonomy = "UNKNOWN"

	// Personal.
	TaxonomyFirstName     Taxonomy = "FIRST_NAME"
	TaxonomyMiddleName    Taxonomy = "MIDDLE_NAME"
	TaxonomyLastName      Taxonomy = "LAST_NAME"
	TaxonomyFullName      Taxonomy = "FULL_NAME"
	TaxonomyPreferredName Taxonomy = "PREFERRED_NAME"
	TaxonomyEmail         Taxonomy = "EMAIL"
	TaxonomyPhone         Taxonomy = "PHONE"
	TaxonomyAddressLine1  Taxonomy = "ADDRESS_LINE1"
	TaxonomyAddressLine2  Taxonomy = "ADDRESS_LINE2"
	TaxonomyCity          Taxonomy = "CITY"
	TaxonomyState         Taxonomy = "STATE"
	TaxonomyPostalCode    Taxonomy = "POSTAL_CODE"
	TaxonomyCountry       Taxonomy = "COUNTRY"
	TaxonomyLinkedIn      Taxonomy = "LINKEDIN"
	TaxonomyGitHub        Taxonomy = "GITHUB"
	TaxonomyPortfolio     Taxonomy = "PORTFOLIO"
	TaxonomyWebsite       Taxonomy = "WEBSITE"

	// Education.
	TaxonomySchool       Taxonomy = "SCHOOL"
	TaxonomyDegree       Taxonomy = "DEGREE"
	TaxonomyMajor        Taxonomy = "MAJOR"
	TaxonomyGPA          Taxonomy = "GPA"
	TaxonomyGradDate     Taxonomy = "GRAD_DATE"
	TaxonomyEduStartDate Taxonomy = "EDU_START_DATE"
	TaxonomyEduEndDate   Taxonomy = "EDU_END_DATE"

	// Experience.
	TaxonomyCompanyName    Taxonomy = "COMPANY_NAME"
	TaxonomyJobTitle       Taxonomy = "JOB_TITLE"
	TaxonomyJobStartDate   Taxonomy = "JOB_START_DATE"
	TaxonomyJobEndDate     Taxonomy = "JOB_END_DATE"
	TaxonomyJobDescription Taxonomy = "JOB_DESCRIPTION"
	TaxonomyJobLocation    Taxonomy = "JOB_LOCATION"
	TaxonomyCurrentJob     Taxonomy = "CURRENT_JOB"

	// Preferences.
	TaxonomyWorkAuthorization   Taxonomy = "WORK_AUTHORIZATION"
	TaxonomyRequiresSponsorship Taxonomy = "REQUIRES_SPONSORSHIP"
	TaxonomyWillingToRelocate   Taxonomy = "WILLING_TO_RELOCATE"
	TaxonomyAvailableStartDate  Taxonomy = "AVAILABLE_START_DATE"
	TaxonomySalaryExpectation   Taxonomy = "SALARY_EXPECTATION"
	TaxonomyReferralSource      Taxonomy = "REFERRAL_SOURCE"
	TaxonomyCoverLetter         Taxonomy = "COVER_LETTER"

	// EEO / identity / documents.
	TaxonomyEEOGender     Taxonomy = "EEO_GENDER"
	TaxonomyEEORace       Taxonomy = "EEO_RACE"
	TaxonomyEEOVeteran    Taxonomy = "EEO_VETERAN"
	TaxonomyEEODisability Taxonomy = "EEO_DISABILITY"
	TaxonomyEEOHispanic   Taxonomy = "EEO_HISPANIC"
	TaxonomyGovID         Taxonomy = "GOV_ID"
	TaxonomyResumeText    Taxonomy = "RESUME_TEXT"
)

// TaxonomyGroup buckets taxonomy members for display and selection rules.
type TaxonomyGroup string

const (
	GroupPersonal    TaxonomyGroup = "personal"
	GroupEducation   TaxonomyGroup = "education"
	GroupExperience  TaxonomyGroup = "experience"
	GroupPreferences TaxonomyGroup = "preferences"
	GroupEEO         TaxonomyGroup = "eeo"
	GroupIdentity    TaxonomyGroup = "identity"
	GroupDocuments   TaxonomyGroup = "documents"
	GroupUnknown     TaxonomyGroup = "unknown"
)

var taxonomyGroups = map[Taxonomy]TaxonomyGroup{
	TaxonomyFirstName:     GroupPersonal,
	TaxonomyMiddleName:    GroupPersonal,
	TaxonomyLastName:      GroupPersonal,
	TaxonomyFullName:      GroupPersonal,
	TaxonomyPreferredName: GroupPersonal,
	TaxonomyEmail:         GroupPersonal,
	TaxonomyPhone:         GroupPersonal,
	TaxonomyAddressLine1:  GroupPersonal,
	TaxonomyAddressLine2:  GroupPersonal,
	TaxonomyCity:          GroupPersonal,
	TaxonomyState:         GroupPersonal,
	TaxonomyPostalCode:    GroupPersonal,
	TaxonomyCountry:       GroupPersonal,
	TaxonomyLinkedIn:      GroupPersonal,
	TaxonomyGitHub:        GroupPersonal,
	TaxonomyPortfolio:     GroupPersonal,
	TaxonomyWebsite:       GroupPersonal,

	TaxonomySchool:       GroupEducation,
	TaxonomyDegree:       GroupEducation,
	TaxonomyMajor:        GroupEducation,
	TaxonomyGPA:          GroupEducation,
	TaxonomyGradDate:     GroupEducation,
	TaxonomyEduStartDate: GroupEducation,
	TaxonomyEduEndDate:   GroupEducation,

	TaxonomyCompanyName:    GroupExperience,
	TaxonomyJobTitle:       GroupExperience,
	TaxonomyJobStartDate:   GroupExperience,
	TaxonomyJobEndDate:     GroupExperience,
	TaxonomyJobDescription: GroupExperience,
	TaxonomyJobLocation:    GroupExperience,
	TaxonomyCurrentJob:     GroupExperience,

	TaxonomyWorkAuthorization:   GroupPreferences,
	TaxonomyRequiresSponsorship: GroupPreferences,
	TaxonomyWillingToRelocate:   GroupPreferences,
	TaxonomyAvailableStartDate:  GroupPreferences,
	TaxonomySalaryExpectation:   GroupPreferences,
	TaxonomyReferralSource:      GroupPreferences,
	TaxonomyCoverLetter:         GroupPreferences,

	TaxonomyEEOGender:     GroupEEO,
	TaxonomyEEORace:       GroupEEO,
	TaxonomyEEOVeteran:    GroupEEO,
	TaxonomyEEODisability: GroupEEO,
	TaxonomyEEOHispanic:   GroupEEO,
	TaxonomyGovID:         GroupIdentity,
	TaxonomyResumeText:    GroupDocuments,
}

// sensitiveTaxonomies is the fixed subset whose answers are gated from autofill
// until the user explicitly allows them.
var sensitiveTaxonomies = map[Taxonomy]bool{
	TaxonomySalaryExpectation: true,
	TaxonomyGovID:             true,
	TaxonomyEEOGender:         true,
	TaxonomyEEORace:           true,
	TaxonomyEEOVeteran:        true,
	TaxonomyEEODisability:     true,
	TaxonomyEEOHispanic:       true,
	TaxonomyResumeText:        true,
}

// AllTaxonomies returns every known taxonomy member except UNKNOWN, in
// declaration order.
func AllTaxonomies() []Taxonomy {
	return []Taxonomy{
		TaxonomyFirstName, TaxonomyMiddleName, TaxonomyLastName, TaxonomyFullName, TaxonomyPreferredName,
		TaxonomyEmail, TaxonomyPhone, TaxonomyAddressLine1, TaxonomyAddressLine2, TaxonomyCity,
		TaxonomyState, TaxonomyPostalCode, TaxonomyCountry, TaxonomyLinkedIn, TaxonomyGitHub,
		TaxonomyPortfolio, TaxonomyWebsite,
		TaxonomySchool, TaxonomyDegree, TaxonomyMajor, TaxonomyGPA, TaxonomyGradDate,
		TaxonomyEduStartDate, TaxonomyEduEndDate,
		TaxonomyCompanyName, TaxonomyJobTitle, TaxonomyJobStartDate, TaxonomyJobEndDate,
		TaxonomyJobDescription, TaxonomyJobLocation, TaxonomyCurrentJob,
		TaxonomyWorkAuthorization, TaxonomyRequiresSponsorship, TaxonomyWillingToRelocate,
		TaxonomyAvailableStartDate, TaxonomySalaryExpectation, TaxonomyReferralSource, TaxonomyCoverLetter,
		TaxonomyEEOGender, TaxonomyEEORace, TaxonomyEEOVeteran, TaxonomyEEODisability, TaxonomyEEOHispanic,
		TaxonomyGovID, TaxonomyResumeText,
	}
}

// ParseTaxonomy accepts the canonical name in any case, with '-' or ' '
// in place of '_'. Unrecognized input yields (UNKNOWN, false).
func ParseTaxonomy(s string) (Taxonomy, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	t := Taxonomy(s)
	if t == TaxonomyUnknown {
		return TaxonomyUnknown, true
	}
	if _, ok := taxonomyGroups[t]; ok {
		return t, true
	}
	return TaxonomyUnknown, false
}

// Group returns the group the taxonomy belongs to.
func (t Taxonomy) Group() TaxonomyGroup {
	if g, ok := taxonomyGroups[t]; ok {
		return g
	}
	return GroupUnknown
}

// IsSensitive reports membership in the sensitive subset.
func (t Taxonomy) IsSensitive() bool {
	return sensitiveTaxonomies[t]
}

// Sensitivity derives the privacy class from taxonomy membership.
func (t Taxonomy) Sensitivity() Sensitivity {
	if t.IsSensitive() {
		return SensitivitySensitive
	}
	return SensitivityNormal
}

// IsExperienceGroup reports whether answers of this type form ordered
// entries (education and work history) selected by priority.
func (t Taxonomy) IsExperienceGroup() bool {
	g := t.Group()
	return g == GroupEducation || g == GroupExperience
}

// Sensitivity is the privacy class of an answer.
type Sensitivity string

const (
	SensitivityNormal    Sensitivity = "normal"
	SensitivitySensitive Sensitivity = "sensitive"
)
