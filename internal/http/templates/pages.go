package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// QuizPage renders a stored quiz with its article metadata.
func QuizPage(data QuizPageData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}

		hw.element("h1", "", data.Title)
		hw.raw("<p class=\"meta\">Source: <a href=\"" + templ.EscapeString(data.SourceURL) + "\">")
		hw.text(data.SourceURL)
		hw.raw("</a>")
		if data.CreatedAt != "" {
			hw.text(" · generated " + data.CreatedAt)
		}
		hw.raw("</p>")

		if data.Summary != "" {
			hw.element("p", "summary", data.Summary)
		}

		if len(data.Sections) > 0 {
			hw.element("h2", "", "Sections")
			hw.list(data.Sections)
		}

		for _, group := range data.Entities {
			if len(group.Names) == 0 {
				continue
			}
			hw.element("h3", "", group.Label)
			hw.list(group.Names)
		}

		hw.element("h2", "", "Quiz")
		for _, question := range data.Questions {
			hw.raw("<div class=\"question\">")
			hw.element("span", "difficulty", question.Difficulty)
			hw.element("p", "prompt", strconv.Itoa(question.Number)+". "+question.Question)
			hw.raw("<ol type=\"A\">")
			for _, option := range question.Options {
				hw.element("li", "", option)
			}
			hw.raw("</ol><details class=\"answer\"><summary>Show answer</summary>")
			hw.element("p", "", question.Answer)
			hw.element("p", "explanation", question.Explanation)
			if question.SectionReference != "" {
				hw.element("p", "meta", "Section: "+question.SectionReference)
			}
			hw.raw("</details></div>")
		}

		if len(data.RelatedTopics) > 0 {
			hw.element("h2", "", "Related topics")
			hw.list(data.RelatedTopics)
		}

		return hw.err
	})

	return layout(data.Title+" quiz", "", body)
}

// ErrorPage renders a minimal error view.
func ErrorPage(data ErrorPageData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		hw.element("h1", "", data.StatusLabel)
		hw.element("p", "", data.Message)
		return hw.err
	})

	return layout(data.StatusLabel, "", body)
}
