package article

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// ErrExtraction indicates the document lacks the structure required to build a Record.
var ErrExtraction = eris.New("failure extracting article content")

const (
	titleSelector      = "h1#firstHeading"
	contentSelector    = "div#mw-content-text"
	parserOutputFilter = "div.mw-parser-output"
	headingSelector    = "h2, h3"
	headlineSelector   = "span.mw-headline"
	nonProseSelector   = "table, script, style, sup, div.reflist"

	summaryMinRunes = 100
	summaryMaxRunes = 500
	maxSections     = 15
	maxArticleWords = 8000
	truncatedMarker = "..."
)

var excludedSections = map[string]struct{}{
	"References":     {},
	"External links": {},
	"See also":       {},
	"Notes":          {},
}

// Extractor turns raw article markup into a Record.
type Extractor struct {
	logger *logrus.Logger
}

// NewExtractor constructs an Extractor. The logger is optional.
func NewExtractor(logger *logrus.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses rawHTML and builds the article record for address.
func (e *Extractor) Extract(address, rawHTML string) (*Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, eris.Wrapf(ErrExtraction, "parsing document for %s: %v", address, err)
	}

	heading := doc.Find(titleSelector).First()
	if heading.Length() == 0 {
		return nil, eris.Wrapf(ErrExtraction, "title heading missing for %s", address)
	}

	title := strings.TrimSpace(heading.Text())
	if title == "" {
		return nil, eris.Wrapf(ErrExtraction, "title heading empty for %s", address)
	}

	container := doc.Find(contentSelector).First()
	if container.Length() == 0 {
		return nil, eris.Wrapf(ErrExtraction, "content container missing for %s", address)
	}

	record := &Record{
		Address:  address,
		Title:    title,
		Summary:  extractSummary(paragraphRoot(container)),
		Sections: extractSections(doc),
	}

	container.Find(nonProseSelector).Remove()
	record.ArticleText = extractArticleText(paragraphRoot(container))
	record.Entities = extractEntities(doc)

	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"address":       address,
			"title":         title,
			"sections":      len(record.Sections),
			"people":        len(record.Entities.People),
			"organizations": len(record.Entities.Organizations),
			"locations":     len(record.Entities.Locations),
		}).Debug("extracted article")
	}

	return record, nil
}

// paragraphRoot returns the element whose direct paragraphs make up the article body.
// Current markup nests the body in a parser output wrapper inside the content container.
func paragraphRoot(container *goquery.Selection) *goquery.Selection {
	if wrapper := container.ChildrenFiltered(parserOutputFilter).First(); wrapper.Length() > 0 {
		return wrapper
	}
	return container
}

func extractSummary(root *goquery.Selection) string {
	summary := ""
	root.ChildrenFiltered("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		if utf8.RuneCountInString(text) > summaryMinRunes {
			summary = TruncateRunes(text, summaryMaxRunes)
			return false
		}
		return true
	})
	return summary
}

func extractSections(doc *goquery.Document) []string {
	sections := make([]string, 0, maxSections)
	doc.Find(headingSelector).EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		label, ok := headingLabel(heading)
		if !ok || label == "" {
			return true
		}
		if _, excluded := excludedSections[label]; excluded {
			return true
		}
		sections = append(sections, label)
		return len(sections) < maxSections
	})
	return sections
}

func headingLabel(heading *goquery.Selection) (string, bool) {
	if headline := heading.Find(headlineSelector).First(); headline.Length() > 0 {
		return strings.TrimSpace(headline.Text()), true
	}
	if heading.Parent().HasClass("mw-heading") {
		return strings.TrimSpace(heading.Text()), true
	}
	return "", false
}

func extractArticleText(root *goquery.Selection) string {
	paragraphs := make([]string, 0)
	root.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	text := strings.Join(paragraphs, "\n\n")

	words := strings.Fields(text)
	if len(words) > maxArticleWords {
		return strings.Join(words[:maxArticleWords], " ") + truncatedMarker
	}

	return text
}

func extractEntities(doc *goquery.Document) Entities {
	collector := newEntityCollector()
	doc.Find("a[href][title]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !isArticleLink(href) {
			return
		}
		title, _ := link.Attr("title")
		collector.add(title)
	})
	return collector.result()
}

// TruncateRunes caps value to at most limit characters without splitting a rune.
func TruncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
