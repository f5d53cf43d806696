package forms

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"merchantcrm/internal/models"
	"merchantcrm/internal/pkg/openai"

	"go.uber.org/zap"
)

// Suggestion is a human label and input type for a raw PDF field name.
type Suggestion struct {
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type Labeler interface {
	Suggest(ctx context.Context, names []string) (map[string]Suggestion, error)
}

var acronyms = map[string]string{
	"dba": "DBA", "mid": "MID", "ein": "EIN", "tin": "TIN", "ssn": "SSN", "id": "ID",
	"url": "URL", "zip": "ZIP", "po": "PO", "llc": "LLC", "mcc": "MCC", "ach": "ACH",
	"dob": "Date of Birth", "pos": "POS",
}

var (
	separators = regexp.MustCompile(`[_\-.\s\[\]]+`)
	typeHints  = []struct {
		re  *regexp.Regexp
		typ string
	}{
		{regexp.MustCompile(`(?i)e-?mail`), models.FieldEmail},
		{regexp.MustCompile(`(?i)phone|fax|mobile|cell|tel\b`), models.FieldPhone},
		{regexp.MustCompile(`(?i)date|dob|birth`), models.FieldDate},
		{regexp.MustCompile(`(?i)amount|volume|ticket|percent|pct|revenue|sales|count|years`), models.FieldNumber},
		{regexp.MustCompile(`(?i)notes|comment|description`), models.FieldTextarea},
	}
	requiredHints = regexp.MustCompile(`(?i)legal.?name|dba|tax.?id|ein|owner.?name|signature`)
)

// HeuristicLabeler derives labels from field names alone.
type HeuristicLabeler struct{}

func (HeuristicLabeler) Suggest(_ context.Context, names []string) (map[string]Suggestion, error) {
	out := make(map[string]Suggestion, len(names))
	for _, n := range names {
		out[n] = Heuristic(n)
	}
	return out, nil
}

// Heuristic labels one field name, e.g. "OwnerFirstName" -> "Owner First Name".
func Heuristic(name string) Suggestion {
	s := Suggestion{Label: Humanize(name), Type: models.FieldText}
	for _, h := range typeHints {
		if h.re.MatchString(name) {
			s.Type = h.typ
			break
		}
	}
	s.Required = requiredHints.MatchString(name)
	return s
}

// Humanize splits snake, kebab and camel case and title-cases the words.
func Humanize(name string) string {
	var words []string
	for _, chunk := range separators.Split(name, -1) {
		words = append(words, splitCamel(chunk)...)
	}

	for i, w := range words {
		lw := strings.ToLower(w)
		if a, ok := acronyms[lw]; ok {
			words[i] = a
			continue
		}
		r := []rune(lw)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func splitCamel(s string) []string {
	var words []string
	var cur []rune
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			boundary := (unicode.IsUpper(r) && unicode.IsLower(prev)) ||
				(unicode.IsDigit(r) != unicode.IsDigit(prev)) ||
				(unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]))
			if boundary && len(cur) > 0 {
				words = append(words, string(cur))
				cur = nil
			}
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

// SuggestingLabeler asks Primary first and fills any gaps heuristically.
// Answers are cached by field name.
type SuggestingLabeler struct {
	Primary Labeler
	Logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]Suggestion
}

func NewSuggestingLabeler(primary Labeler, logger *zap.Logger) *SuggestingLabeler {
	return &SuggestingLabeler{Primary: primary, Logger: logger, cache: map[string]Suggestion{}}
}

func (l *SuggestingLabeler) Suggest(ctx context.Context, names []string) (map[string]Suggestion, error) {
	out := make(map[string]Suggestion, len(names))
	var missing []string

	l.mu.Lock()
	for _, n := range names {
		if s, ok := l.cache[n]; ok {
			out[n] = s
		} else {
			missing = append(missing, n)
		}
	}
	l.mu.Unlock()

	if len(missing) > 0 && l.Primary != nil {
		got, err := l.Primary.Suggest(ctx, missing)
		if err != nil {
			l.Logger.Warn("label suggestion failed, using heuristics", zap.Error(err))
		}
		l.mu.Lock()
		for n, s := range got {
			if s.Label == "" {
				continue
			}
			if !knownType(s.Type) {
				s.Type = Heuristic(n).Type
			}
			l.cache[n] = s
			out[n] = s
		}
		l.mu.Unlock()
	}

	for _, n := range names {
		if _, ok := out[n]; !ok {
			out[n] = Heuristic(n)
		}
	}
	return out, nil
}

// AILabeler adapts the OpenAI field labeler.
type AILabeler struct {
	Client *openai.FieldLabeler
}

func (l AILabeler) Suggest(ctx context.Context, names []string) (map[string]Suggestion, error) {
	labels, err := l.Client.LabelFields(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Suggestion, len(labels))
	for n, fl := range labels {
		out[n] = Suggestion{Label: fl.Label, Type: fl.Type, Required: fl.Required}
	}
	return out, nil
}
