// Package normalize maps free text and detected attributes onto a canonical
// category, brand and model.
package normalize

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/appraise-cli/internal/model"
)

// Attribute keys written by the normalizer.
const (
	KeyModel = "model"
	KeyBrand = "brand"
)

const (
	literalConfidence  = 0.8
	keywordConfidence  = 0.7
	canonicalModelConf = 0.95
)

// Normalizer categorizes items. Only attribute timestamps depend on its clock.
type Normalizer struct {
	now func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used to stamp derived attributes.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize runs a default Normalizer.
func Normalize(title, description string, detected, overrides map[string]model.AttributeValue) model.NormalizedMetadata {
	return New().Normalize(title, description, detected, overrides)
}

// Normalize categorizes title+description against the taxonomy, merges
// detected attributes with user overrides (overrides always win) and
// canonicalizes the model name through the alias table.
func (n *Normalizer) Normalize(title, description string, detected, overrides map[string]model.AttributeValue) model.NormalizedMetadata {
	raw := strings.TrimSpace(title + " " + description)
	text := cases.Lower(language.Und).String(raw)

	out := model.NormalizedMetadata{Category: model.UnknownCategory}
	if m, ok := classify(text); ok {
		out.Category = m.category
		out.Subcategory = m.subcategory
		out.Confidence = m.confidence
	}

	attrs := mergeAttributes(detected, overrides)
	now := n.now()

	// Model: attribute value first, else an alias phrase found in the text.
	var rawModel string
	var found alias
	var known bool
	if v, ok := attrs[KeyModel]; ok && strings.TrimSpace(v.Value) != "" {
		rawModel = v.Value
		found, known = aliases[cases.Lower(language.Und).String(strings.TrimSpace(v.Value))]
	} else if phrase, ok := longestAlias(text); ok {
		rawModel = originalSpan(raw, text, phrase)
		found, known = aliases[phrase], true
	}

	out.Model = rawModel
	if known {
		out.Model = found.Canonical
		if found.Canonical != rawModel {
			attrs[KeyModel] = model.AttributeValue{
				Value:      found.Canonical,
				Source:     model.SourceInference,
				Confidence: canonicalModelConf,
				Timestamp:  now,
			}
			out.Variant = &model.VariantMapping{Original: rawModel, Canonical: found.Canonical}
		}
	}

	// Brand: attribute value, then the alias, then a known brand in the text.
	switch {
	case attrs[KeyBrand].Value != "":
		out.Brand = attrs[KeyBrand].Value
	case known && found.Brand != "":
		out.Brand = found.Brand
		attrs[KeyBrand] = model.NewAttribute(found.Brand, model.SourceInference, now)
	default:
		if b, ok := findBrand(text); ok {
			out.Brand = cases.Title(language.English).String(b)
			attrs[KeyBrand] = model.NewAttribute(out.Brand, model.SourceInference, now)
		}
	}

	out.Attributes = attrs
	return out
}

// Resolve picks the winning value for one attribute key: higher confidence
// wins and equal confidence goes to the later timestamp. Full ties keep a.
func Resolve(a, b model.AttributeValue) model.AttributeValue {
	if b.Confidence > a.Confidence {
		return b
	}
	if b.Confidence == a.Confidence && b.Timestamp.After(a.Timestamp) {
		return b
	}
	return a
}

// mergeAttributes applies detected attributes, resolving keys that collide
// after case folding, then lays overrides over them unconditionally.
func mergeAttributes(detected, overrides map[string]model.AttributeValue) map[string]model.AttributeValue {
	merged := make(map[string]model.AttributeValue, len(detected)+len(overrides))

	for _, k := range sortedKeys(detected) {
		key := attributeKey(k)
		if key == "" {
			continue
		}
		v := detected[k]
		if prev, ok := merged[key]; ok {
			v = Resolve(prev, v)
		}
		merged[key] = v
	}

	// Overrides collapse among themselves the same way but then replace.
	winners := make(map[string]model.AttributeValue, len(overrides))
	for _, k := range sortedKeys(overrides) {
		key := attributeKey(k)
		if key == "" {
			continue
		}
		v := overrides[k]
		if prev, ok := winners[key]; ok {
			v = Resolve(prev, v)
		}
		winners[key] = v
	}
	for k, v := range winners {
		merged[k] = v
	}
	return merged
}

func attributeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func sortedKeys(m map[string]model.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type match struct {
	category    string
	subcategory string
	confidence  float64
}

// classify scans the taxonomy. A literal subcategory name scores 0.8 and
// replaces any weaker match; a keyword scores 0.7 only if nothing matched yet.
func classify(text string) (match, bool) {
	var best match
	for _, cat := range taxonomy {
		for _, sub := range cat.Subcategories {
			if containsPhrase(text, strings.ToLower(sub.Name)) {
				if literalConfidence > best.confidence {
					best = match{cat.Name, sub.Name, literalConfidence}
				}
				continue
			}
			if keywordConfidence > best.confidence {
				for _, kw := range sub.Keywords {
					if containsPhrase(text, kw) {
						best = match{cat.Name, sub.Name, keywordConfidence}
						break
					}
				}
			}
		}
	}
	return best, best.confidence > 0
}

// longestAlias finds the longest alias phrase in text; equal lengths break
// alphabetically so the result is stable.
func longestAlias(text string) (string, bool) {
	var best string
	for phrase := range aliases {
		if !containsPhrase(text, phrase) {
			continue
		}
		if len(phrase) > len(best) || (len(phrase) == len(best) && phrase < best) {
			best = phrase
		}
	}
	return best, best != ""
}

func findBrand(text string) (string, bool) {
	var best string
	for _, b := range brands {
		if containsPhrase(text, b) && len(b) > len(best) {
			best = b
		}
	}
	return best, best != ""
}

// originalSpan returns phrase as written in raw when lower-casing kept byte
// offsets aligned, else the lower-cased phrase.
func originalSpan(raw, lower, phrase string) string {
	i := indexPhrase(lower, phrase)
	if i < 0 || len(raw) != len(lower) {
		return phrase
	}
	return raw[i : i+len(phrase)]
}

func containsPhrase(text, phrase string) bool {
	return indexPhrase(text, phrase) >= 0
}

// indexPhrase finds phrase in text at word boundaries.
func indexPhrase(text, phrase string) int {
	if phrase == "" {
		return -1
	}
	for start := 0; start < len(text); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return -1
		}
		i += start
		end := i + len(phrase)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return i
		}
		start = i + 1
	}
	return -1
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b >= 0x80
}
