package candidate

import (
	"strconv"
	"strings"
)

// EmbeddingText renders the text that is embedded for semantic search.
// Equal summaries always produce byte-identical output.
func EmbeddingText(s *Summary) string {
	var b strings.Builder
	b.WriteString("Candidate Overview:\n\n")
	if s == nil {
		return b.String()
	}
	if s.ProfessionalSummary != nil && strings.TrimSpace(*s.ProfessionalSummary) != "" {
		b.WriteString(*s.ProfessionalSummary)
		b.WriteString("\n\n")
	}
	if s.YearsOfExperience != nil {
		b.WriteString("Years of Experience: ")
		b.WriteString(strconv.FormatFloat(*s.YearsOfExperience, 'f', -1, 64))
		b.WriteString("\n\n")
	}
	if len(s.CoreSkills) > 0 {
		b.WriteString("Core Skills: ")
		b.WriteString(strings.Join(s.CoreSkills, ", "))
		b.WriteString("\n\n")
	}
	return b.String()
}
