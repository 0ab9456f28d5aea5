package ccda

import "encoding/xml"

const (
	CDANamespace = "urn:hl7-org:v3"

	// typeId root required by the CDA R2 schema.
	OIDCDATypeID = "2.16.840.1.113883.1.3"

	OIDUSRealmHeader = "2.16.840.1.113883.10.20.22.1.1"
	OIDCCDDocument   = "2.16.840.1.113883.10.20.22.1.2"

	OIDLOINC = "2.16.840.1.113883.6.1"
)

// ClinicalDocument maps the CDA R2 header and the section list of the body.
// Section entries are not decoded.
type ClinicalDocument struct {
	XMLName             xml.Name       `xml:"urn:hl7-org:v3 ClinicalDocument"`
	TypeID              *TypeID        `xml:"typeId"`
	TemplateIDs         []TemplateID   `xml:"templateId"`
	ID                  *InstanceID    `xml:"id"`
	Code                *Code          `xml:"code"`
	Title               string         `xml:"title"`
	EffectiveTime       *TimeValue     `xml:"effectiveTime"`
	ConfidentialityCode *Code          `xml:"confidentialityCode"`
	LanguageCode        *Code          `xml:"languageCode"`
	RecordTargets       []RecordTarget `xml:"recordTarget"`
	Authors             []Author       `xml:"author"`
	Component           *Component     `xml:"component"`
}

type TypeID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

type TemplateID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

type InstanceID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

// Code represents a coded value with optional code system.
type Code struct {
	Code           string `xml:"code,attr"`
	CodeSystem     string `xml:"codeSystem,attr"`
	CodeSystemName string `xml:"codeSystemName,attr"`
	DisplayName    string `xml:"displayName,attr"`
	NullFlavor     string `xml:"nullFlavor,attr"`
}

// TimeValue holds a time stamp in HL7 format (YYYYMMDD[HHmm[ss]][+ZZzz]).
type TimeValue struct {
	Value string `xml:"value,attr"`
}

type RecordTarget struct {
	PatientRole *PatientRole `xml:"patientRole"`
}

type PatientRole struct {
	IDs     []InstanceID `xml:"id"`
	Patient *Patient     `xml:"patient"`
}

type Patient struct {
	Name                     *Name      `xml:"name"`
	AdministrativeGenderCode *Code      `xml:"administrativeGenderCode"`
	BirthTime                *TimeValue `xml:"birthTime"`
}

type Name struct {
	Given  []string `xml:"given"`
	Family string   `xml:"family"`
}

type Author struct {
	Time           *TimeValue      `xml:"time"`
	AssignedAuthor *AssignedAuthor `xml:"assignedAuthor"`
}

type AssignedAuthor struct {
	IDs []InstanceID `xml:"id"`
}

type Component struct {
	StructuredBody *StructuredBody `xml:"structuredBody"`
	NonXMLBody     *NonXMLBody     `xml:"nonXMLBody"`
}

type StructuredBody struct {
	Components []SectionComponent `xml:"component"`
}

// NonXMLBody carries an unstructured payload such as an embedded PDF.
type NonXMLBody struct {
	Text struct {
		MediaType      string `xml:"mediaType,attr"`
		Representation string `xml:"representation,attr"`
	} `xml:"text"`
}

type SectionComponent struct {
	Section *Section `xml:"section"`
}

type Section struct {
	TemplateIDs []TemplateID `xml:"templateId"`
	Code        *Code        `xml:"code"`
	Title       string       `xml:"title"`
}
