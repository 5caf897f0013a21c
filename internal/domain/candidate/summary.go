package candidate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Summary is the fixed-schema professional summary generated for a candidate.
// Scalars the source data lacked are nil.
type Summary struct {
	ProfessionalSummary *string          `json:"professionalSummary"`
	YearsOfExperience   *float64         `json:"yearsOfExperience"`
	CoreSkills          []string         `json:"coreSkills"`
	WorkExperience      []WorkExperience `json:"workExperience"`
	Projects            []Project        `json:"projects"`
	Education           *Education       `json:"education"`
}

type WorkExperience struct {
	Company             *string  `json:"company"`
	Role                *string  `json:"role"`
	Duration            *string  `json:"duration"`
	KeyResponsibilities []string `json:"keyResponsibilities"`
	Achievements        []string `json:"achievements"`
	TechnologiesUsed    []string `json:"technologiesUsed"`
}

type Project struct {
	Name             *string  `json:"name"`
	Description      *string  `json:"description"`
	TechnologiesUsed []string `json:"technologiesUsed"`
	Impact           *string  `json:"impact"`
}

type Education struct {
	Institution  *string `json:"institution"`
	Degree       *string `json:"degree"`
	FieldOfStudy *string `json:"fieldOfStudy"`
	Highlights   *string `json:"highlights"`
}

// Str dereferences a nullable summary field, returning "" for nil.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var requiredKeys = []string{
	"professionalSummary",
	"yearsOfExperience",
	"coreSkills",
	"workExperience",
	"projects",
	"education",
}

var ErrMalformedSummary = errors.New("malformed summary")

// ParseSummary decodes raw strictly: every top-level key must be present,
// unknown keys anywhere are rejected, and trailing data is an error.
func ParseSummary(raw []byte) (*Summary, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedSummary)
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := top[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing keys %s", ErrMalformedSummary, strings.Join(missing, ", "))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var s Summary
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedSummary)
	}
	s.normalize()
	return &s, nil
}

// normalize replaces nil slices with empty ones so the stored form is stable.
func (s *Summary) normalize() {
	if s.CoreSkills == nil {
		s.CoreSkills = []string{}
	}
	if s.WorkExperience == nil {
		s.WorkExperience = []WorkExperience{}
	}
	if s.Projects == nil {
		s.Projects = []Project{}
	}
}

// SkillNames returns the core skills plus every technology mentioned in work
// experience and projects, trimmed and de-duplicated case-insensitively in
// first-seen order.
func (s *Summary) SkillNames() []string {
	if s == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(items []string) {
		for _, it := range items {
			it = strings.TrimSpace(it)
			key := strings.ToLower(it)
			if it == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, it)
		}
	}
	add(s.CoreSkills)
	for _, w := range s.WorkExperience {
		add(w.TechnologiesUsed)
	}
	for _, p := range s.Projects {
		add(p.TechnologiesUsed)
	}
	return out
}
