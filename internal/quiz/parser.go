package quiz

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"wikiquiz/app/internal/article"
)

// ErrParse indicates completion text could not be decoded into a quiz.
var ErrParse = eris.New("failure parsing quiz completion")

// MaxRelatedTopics caps the number of related topics kept from a completion.
const MaxRelatedTopics = 7

// FallbackTopics is returned whenever related-topics completion text cannot be decoded.
var FallbackTopics = []string{"History", "Science", "Technology"}

const previewRunes = 500

// ParseQuiz extracts the question list from the first JSON object in raw.
// Questions are decoded into Question, so a field of the wrong JSON type fails with
// ErrParse and unknown keys are dropped. Field values are not otherwise checked.
func ParseQuiz(raw string) ([]Question, error) {
	cleaned := stripCodeFence(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return nil, eris.Wrapf(ErrParse, "no JSON object found in completion: %s", preview(cleaned))
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, eris.Wrapf(ErrParse, "decoding quiz JSON: %v", err)
	}

	rawQuiz, ok := payload["quiz"]
	if !ok {
		return nil, eris.Wrapf(ErrParse, "completion missing quiz key: %s", preview(cleaned))
	}

	if trimmed := bytes.TrimSpace(rawQuiz); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, eris.Wrapf(ErrParse, "quiz value is not a list: %s", preview(string(rawQuiz)))
	}

	questions := make([]Question, 0)
	if err := json.Unmarshal(rawQuiz, &questions); err != nil {
		return nil, eris.Wrapf(ErrParse, "decoding quiz questions: %v", err)
	}

	return questions, nil
}

// ParseRelatedTopics decodes raw as a JSON array of strings, falling back to FallbackTopics.
func ParseRelatedTopics(raw string) []string {
	var topics []string
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &topics); err != nil || topics == nil {
		return append([]string(nil), FallbackTopics...)
	}

	if len(topics) > MaxRelatedTopics {
		topics = topics[:MaxRelatedTopics]
	}
	return topics
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = text[4:]
	} else if newline := strings.IndexByte(text, '\n'); newline != -1 {
		// Drop the language hint on the opening fence line.
		if !strings.ContainsAny(text[:newline], "{[\"") {
			text = text[newline+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")

	return strings.TrimSpace(text)
}

func preview(text string) string {
	return article.TruncateRunes(text, previewRunes)
}
