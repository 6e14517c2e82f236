package templates

// DefaultFooterNote is shown in the shared layout when a page does not supply custom text.
const DefaultFooterNote = "Quizzes are generated from English Wikipedia articles and cached per article."

// QuestionView is a single question as rendered on the quiz page.
type QuestionView struct {
	Number           int
	Question         string
	Options          []string
	Answer           string
	Difficulty       string
	Explanation      string
	SectionReference string
}

// EntityGroupView lists the entities of one kind.
type EntityGroupView struct {
	Label string
	Names []string
}

// QuizPageData bundles template data for a stored quiz.
type QuizPageData struct {
	Title         string
	SourceURL     string
	Summary       string
	Sections      []string
	Entities      []EntityGroupView
	Questions     []QuestionView
	RelatedTopics []string
	CreatedAt     string
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	StatusLabel string
	Message     string
}
