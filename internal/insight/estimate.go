package insight

import (
	"math"
	"strings"

	"focusly/internal/domain"
)

type Category string

const (
	CategoryStudy    Category = "study"
	CategoryWork     Category = "work"
	CategoryPersonal Category = "personal"
	CategoryPlanning Category = "planning"
	CategoryGeneral  Category = "general"
)

type Urgency string

const (
	UrgencyUrgent Urgency = "urgent"
	UrgencySoon   Urgency = "soon"
	UrgencyNormal Urgency = "normal"
)

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Category order matters: the first set with a match wins.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryStudy, []string{"study", "read", "learn", "revise", "exam", "chapter", "homework"}},
	{CategoryWork, []string{"meeting", "report", "presentation", "deadline", "project", "client"}},
	{CategoryPersonal, []string{"buy", "call", "email", "reminder", "appointment"}},
	{CategoryPlanning, []string{"plan", "organize", "schedule", "prepare"}},
}

var (
	urgentKeywords = []string{"urgent", "asap", "emergency", "critical", "immediately"}
	soonKeywords   = []string{"soon", "today", "tomorrow", "this week"}
	stopwords      = map[string]bool{"about": true, "should": true, "would": true, "could": true, "there": true, "their": true}
)

const maxKeywords = 5

type Estimate struct {
	Category        Category   `json:"category"`
	Urgency         Urgency    `json:"urgency"`
	Complexity      Complexity `json:"complexity"`
	DurationMinutes int        `json:"duration_minutes"`
	Keywords        []string   `json:"keywords"`
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func classifyCategory(lower string) Category {
	for _, set := range categoryKeywords {
		if containsAny(lower, set.keywords) {
			return set.category
		}
	}
	return CategoryGeneral
}

func classifyUrgency(lower string) Urgency {
	switch {
	case containsAny(lower, urgentKeywords):
		return UrgencyUrgent
	case containsAny(lower, soonKeywords):
		return UrgencySoon
	}
	return UrgencyNormal
}

func classifyComplexity(text, lower string) Complexity {
	words := len(strings.Fields(text))
	switch {
	case words > 50 || strings.Contains(lower, "project") || strings.Contains(lower, "plan"):
		return ComplexityComplex
	case words > 20:
		return ComplexityMedium
	}
	return ComplexitySimple
}

func baseDuration(c Complexity) int {
	switch c {
	case ComplexitySimple:
		return 30
	case ComplexityMedium:
		return 60
	case ComplexityComplex:
		return 120
	}
	return 30
}

func extractKeywords(lower string) []string {
	res := []string{}
	seen := map[string]bool{}
	for _, word := range strings.Fields(lower) {
		word = strings.TrimFunc(word, isEdgePunct)
		if len(word) <= 4 || stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		res = append(res, word)
		if len(res) == maxKeywords {
			break
		}
	}
	return res
}

func isEdgePunct(r rune) bool {
	return strings.ContainsRune(`.,;:!?"'()[]{}<>`, r)
}

// EstimateFromContent classifies free text and derives a duration for the role.
func EstimateFromContent(text string, role domain.Role) Estimate {
	lower := strings.ToLower(text)
	est := Estimate{
		Category:   classifyCategory(lower),
		Urgency:    classifyUrgency(lower),
		Complexity: classifyComplexity(text, lower),
		Keywords:   extractKeywords(lower),
	}
	duration := float64(baseDuration(est.Complexity))
	switch role {
	case domain.RoleStudent:
		if est.Category == CategoryStudy {
			duration *= 1.5
		}
	case domain.RoleProfessional:
		if est.Category == CategoryWork {
			duration *= 1.3
		}
	case domain.RoleBusiness, domain.RoleGeneral:
	}
	est.DurationMinutes = int(math.Round(duration))
	return est
}

// NoteConversion is a task proposal derived from a free-text note.
type NoteConversion struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	EstimatedDuration int             `json:"estimated_duration"`
	Priority          domain.Priority `json:"priority"`
	Category          Category        `json:"category"`
	SuggestedDate     string          `json:"suggested_date"`
	Tags              []string        `json:"tags"`
}

const maxNameLength = 50

// TaskName takes the first sentence of text, truncated to fit maxNameLength.
func TaskName(text string) string {
	name := strings.TrimSpace(text)
	if i := strings.IndexAny(name, ".!?"); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength-3]) + "..."
	}
	return name
}

func priorityFor(est Estimate) domain.Priority {
	switch {
	case est.Urgency == UrgencyUrgent:
		return domain.PriorityUrgent
	case est.Urgency == UrgencySoon:
		return domain.PriorityHigh
	case est.Complexity == ComplexityComplex:
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}

func suggestedDate(u Urgency, today string) string {
	offset := 3
	switch u {
	case UrgencyUrgent:
		offset = 0
	case UrgencySoon:
		offset = 1
	case UrgencyNormal:
	}
	date, err := domain.AddDays(today, offset)
	if err != nil {
		return today
	}
	return date
}

func ConvertNote(text string, role domain.Role, today string) NoteConversion {
	est := EstimateFromContent(text, role)
	return NoteConversion{
		Name:              TaskName(text),
		Description:       strings.TrimSpace(text),
		EstimatedDuration: est.DurationMinutes,
		Priority:          priorityFor(est),
		Category:          est.Category,
		SuggestedDate:     suggestedDate(est.Urgency, today),
		Tags:              est.Keywords,
	}
}
