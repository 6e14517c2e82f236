package article

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EntityKind is the outcome of the link title classifier.
type EntityKind int

const (
	Unclassified EntityKind = iota
	Person
	Organization
	Location
)

const (
	maxEntitiesPerKind = 10
	maxPersonTokens    = 3
)

var (
	organizationKeywords = []string{"university", "company", "corporation", "institute", "organization"}
	locationKeywords     = []string{"city", "country", "state", "kingdom", "empire"}
)

func (k EntityKind) String() string {
	switch k {
	case Person:
		return "person"
	case Organization:
		return "organization"
	case Location:
		return "location"
	default:
		return "unclassified"
	}
}

// Classify applies the ordered keyword rules to a link title. The first matching rule wins.
func Classify(title string) EntityKind {
	lowered := strings.ToLower(title)

	switch {
	case containsAny(lowered, organizationKeywords):
		return Organization
	case containsAny(lowered, locationKeywords):
		return Location
	case looksLikeName(title):
		return Person
	default:
		return Unclassified
	}
}

// isArticleLink reports whether href points at a regular in-wiki article rather than a namespaced page.
func isArticleLink(href string) bool {
	return strings.Contains(href, "/wiki/") && !strings.Contains(href, ":")
}

func containsAny(value string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(value, keyword) {
			return true
		}
	}
	return false
}

func looksLikeName(title string) bool {
	if title == "" {
		return false
	}

	if len(strings.Fields(title)) > maxPersonTokens {
		return false
	}

	first, _ := utf8.DecodeRuneInString(title)
	return unicode.IsUpper(first)
}

// entityCollector keeps first-seen order and drops duplicates and overflow per kind.
type entityCollector struct {
	seen     map[EntityKind]map[string]struct{}
	entities Entities
}

func newEntityCollector() *entityCollector {
	return &entityCollector{
		seen: map[EntityKind]map[string]struct{}{
			Person:       {},
			Organization: {},
			Location:     {},
		},
		entities: Entities{
			People:        []string{},
			Organizations: []string{},
			Locations:     []string{},
		},
	}
}

func (c *entityCollector) add(title string) {
	kind := Classify(title)

	var bucket *[]string
	switch kind {
	case Person:
		bucket = &c.entities.People
	case Organization:
		bucket = &c.entities.Organizations
	case Location:
		bucket = &c.entities.Locations
	default:
		return
	}

	if len(*bucket) >= maxEntitiesPerKind {
		return
	}

	if _, exists := c.seen[kind][title]; exists {
		return
	}
	c.seen[kind][title] = struct{}{}
	*bucket = append(*bucket, title)
}

func (c *entityCollector) result() Entities {
	return c.entities
}
