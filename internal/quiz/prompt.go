package quiz

import (
	"bytes"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"wikiquiz/app/internal/article"
)

// DefaultPromptPath is where the quiz prompt template is read from when no path is configured.
const DefaultPromptPath = "./prompts/quiz_prompt.txt"

const topicsPromptTemplate = `Suggest 5-7 related Wikipedia topics for the article "{{.Title}}".

Article summary:
{{.Summary}}

Respond with ONLY a valid JSON array, nothing else.
Example:
["Topic 1", "Topic 2", "Topic 3"]
`

// Inputs holds the two prompts sent to the completion collaborator for one article.
type Inputs struct {
	QuizPrompt   string
	TopicsPrompt string
}

// PromptBuilder renders generation inputs from an article record.
type PromptBuilder struct {
	quiz   *template.Template
	topics *template.Template
}

type quizPromptData struct {
	Title       string
	ArticleText string
}

type topicsPromptData struct {
	Title   string
	Summary string
}

// LoadPromptTemplate reads the quiz prompt template from path.
func LoadPromptTemplate(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = DefaultPromptPath
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return "", eris.Wrapf(err, "reading quiz prompt template: %s", trimmed)
	}

	return string(raw), nil
}

// NewPromptBuilder parses the quiz prompt template. The template sees .Title and .ArticleText.
func NewPromptBuilder(quizTemplate string) (*PromptBuilder, error) {
	if strings.TrimSpace(quizTemplate) == "" {
		return nil, eris.New("quiz prompt template is empty")
	}

	quizTmpl, err := template.New("quiz").Parse(quizTemplate)
	if err != nil {
		return nil, eris.Wrap(err, "parsing quiz prompt template")
	}

	topicsTmpl := template.Must(template.New("topics").Parse(topicsPromptTemplate))

	return &PromptBuilder{quiz: quizTmpl, topics: topicsTmpl}, nil
}

// Build renders the quiz and related-topics prompts for record.
func (b *PromptBuilder) Build(record *article.Record) (Inputs, error) {
	if record == nil {
		return Inputs{}, eris.New("article record is nil")
	}

	var quizBuf bytes.Buffer
	if err := b.quiz.Execute(&quizBuf, quizPromptData{Title: record.Title, ArticleText: record.ArticleText}); err != nil {
		return Inputs{}, eris.Wrapf(err, "rendering quiz prompt for %s", record.Address)
	}

	var topicsBuf bytes.Buffer
	if err := b.topics.Execute(&topicsBuf, topicsPromptData{Title: record.Title, Summary: record.Summary}); err != nil {
		return Inputs{}, eris.Wrapf(err, "rendering topics prompt for %s", record.Address)
	}

	return Inputs{QuizPrompt: quizBuf.String(), TopicsPrompt: topicsBuf.String()}, nil
}
