package ccda

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrNotCDA = errors.New("ccda: not a CDA document")

// Header is the subset of a CDA document the exchange indexes on.
type Header struct {
	DocumentID    InstanceID
	Title         string
	Code          Code
	EffectiveTime time.Time
	Templates     []string
	Patient       ParsedPatient
	Sections      []SectionSummary
	// BodyMediaType is set for nonXMLBody documents.
	BodyMediaType string
}

// ParsedPatient contains the patient demographics extracted from the CDA header.
type ParsedPatient struct {
	Name        string
	DOB         string
	Gender      string
	Identifiers []InstanceID
}

type SectionSummary struct {
	Code  string
	Title string
}

// ParseHeader decodes the CDA header of xmlData. It fails when the payload
// is not XML, when the root is not a CDA ClinicalDocument, or when the
// document id or recordTarget is missing.
func ParseHeader(xmlData []byte) (*Header, error) {
	if len(bytes.TrimSpace(xmlData)) == 0 {
		return nil, fmt.Errorf("%w: XML data is empty", ErrNotCDA)
	}

	var doc ClinicalDocument
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCDA, err)
	}

	if doc.TypeID != nil && doc.TypeID.Root != "" && doc.TypeID.Root != OIDCDATypeID {
		return nil, fmt.Errorf("%w: unexpected typeId root %s", ErrNotCDA, doc.TypeID.Root)
	}
	if doc.ID == nil || doc.ID.Root == "" {
		return nil, fmt.Errorf("%w: document id is missing", ErrNotCDA)
	}
	if len(doc.RecordTargets) == 0 || doc.RecordTargets[0].PatientRole == nil {
		return nil, fmt.Errorf("%w: recordTarget is missing", ErrNotCDA)
	}

	h := &Header{
		DocumentID: *doc.ID,
		Title:      strings.TrimSpace(doc.Title),
		Patient:    parsePatient(doc.RecordTargets[0].PatientRole),
	}
	if doc.Code != nil {
		h.Code = *doc.Code
	}
	if doc.EffectiveTime != nil && doc.EffectiveTime.Value != "" {
		t, err := parseHL7Time(doc.EffectiveTime.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: effectiveTime: %v", ErrNotCDA, err)
		}
		h.EffectiveTime = t
	}
	for _, tpl := range doc.TemplateIDs {
		h.Templates = append(h.Templates, tpl.Root)
	}

	if doc.Component != nil {
		if body := doc.Component.StructuredBody; body != nil {
			for _, comp := range body.Components {
				if comp.Section == nil {
					continue
				}
				s := SectionSummary{Title: strings.TrimSpace(comp.Section.Title)}
				if comp.Section.Code != nil {
					s.Code = comp.Section.Code.Code
				}
				h.Sections = append(h.Sections, s)
			}
		}
		if body := doc.Component.NonXMLBody; body != nil {
			h.BodyMediaType = body.Text.MediaType
		}
	}

	return h, nil
}

// HasTemplate reports whether the document declares the given template root.
func (h *Header) HasTemplate(oid string) bool {
	for _, t := range h.Templates {
		if t == oid {
			return true
		}
	}
	return false
}

// Meta flattens the header into string attributes stored next to the
// document. Empty values are omitted.
func (h *Header) Meta() map[string]string {
	meta := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			meta[k] = v
		}
	}

	docID := h.DocumentID.Root
	if h.DocumentID.Extension != "" {
		docID += "^" + h.DocumentID.Extension
	}
	set("cda.documentId", docID)
	set("cda.title", h.Title)
	set("cda.code", h.Code.Code)
	set("cda.codeSystem", h.Code.CodeSystem)
	if !h.EffectiveTime.IsZero() {
		set("cda.effectiveTime", h.EffectiveTime.Format(time.RFC3339))
	}
	set("cda.bodyMediaType", h.BodyMediaType)
	if len(h.Sections) > 0 {
		set("cda.sections", strconv.Itoa(len(h.Sections)))
	}
	return meta
}

func parsePatient(role *PatientRole) ParsedPatient {
	patient := ParsedPatient{Identifiers: role.IDs}
	if role.Patient == nil {
		return patient
	}
	pat := role.Patient

	if pat.Name != nil {
		parts := append([]string{}, pat.Name.Given...)
		if pat.Name.Family != "" {
			parts = append(parts, pat.Name.Family)
		}
		patient.Name = strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	}

	if pat.AdministrativeGenderCode != nil {
		patient.Gender = pat.AdministrativeGenderCode.DisplayName
		if patient.Gender == "" {
			patient.Gender = pat.AdministrativeGenderCode.Code
		}
	}

	if pat.BirthTime != nil && pat.BirthTime.Value != "" {
		patient.DOB = formatParsedDate(pat.BirthTime.Value)
	}

	return patient
}

// parseHL7Time parses an HL7 TS value. A trailing +ZZzz/-ZZzz offset is honoured.
func parseHL7Time(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "+-"); i > 0 {
		if t, err := time.Parse("20060102150405-0700", padSeconds(s[:i])+s[i:]); err == nil {
			return t, nil
		}
		s = s[:i]
	}
	if dot := strings.IndexByte(s, '.'); dot > 0 {
		s = s[:dot]
	}
	switch len(s) {
	case 14:
		return time.Parse("20060102150405", s)
	case 12:
		return time.Parse("200601021504", s)
	case 8:
		return time.Parse("20060102", s)
	default:
		return time.Time{}, fmt.Errorf("ccda: unrecognized time format: %s", s)
	}
}

func padSeconds(s string) string {
	if dot := strings.IndexByte(s, '.'); dot > 0 {
		s = s[:dot]
	}
	switch len(s) {
	case 8:
		return s + "000000"
	case 12:
		return s + "00"
	}
	return s
}

// formatParsedDate converts an HL7 date (YYYYMMDD) to YYYY-MM-DD.
func formatParsedDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 8 {
		return s[:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	return s
}
