package http

import (
	"context"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"wikiquiz/app/internal/article"
	"wikiquiz/app/internal/db"
	"wikiquiz/app/internal/http/templates"
	"wikiquiz/app/internal/quiz"
)

const (
	htmlContentType      = "text/html; charset=utf-8"
	errorFallbackMessage = "We couldn't process your request right now."
	quizNotFoundMessage  = "Quiz not found"
	quizDeletedMessage   = "Quiz deleted successfully"
)

type quizBody struct {
	ID            uint             `json:"id"`
	URL           string           `json:"url"`
	Title         string           `json:"title"`
	Summary       string           `json:"summary"`
	KeyEntities   article.Entities `json:"key_entities"`
	Sections      []string         `json:"sections"`
	Quiz          []quiz.Question  `json:"quiz"`
	RelatedTopics []string         `json:"related_topics"`
	CreatedAt     time.Time        `json:"created_at"`
}

type quizSummaryBody struct {
	ID        uint      `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type generateQuizInput struct {
	Body struct {
		URL string `json:"url,omitempty" doc:"English Wikipedia article URL" example:"https://en.wikipedia.org/wiki/Alan_Turing"`
	}
}

type quizOutput struct {
	Status int
	Body   quizBody
}

type listQuizzesInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"50" doc:"Maximum number of quizzes to return"`
}

type listQuizzesOutput struct {
	Body []quizSummaryBody
}

type quizIDInput struct {
	ID int64 `path:"id" doc:"Quiz identifier"`
}

type messageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

type bannerOutput struct {
	Body struct {
		Message string `json:"message"`
		Version string `json:"version"`
	}
}

type healthResponse struct {
	Status int
	Body   struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Records  int64  `json:"records"`
	}
}

func (s *Server) registerRootRoute() {
	huma.Get(s.api, "/", s.rootHandler, func(op *huma.Operation) {
		op.Summary = "Service banner"
	})
}

func (s *Server) registerGenerateRoute() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "generate-quiz",
		Method:        stdhttp.MethodPost,
		Path:          "/api/generate-quiz",
		Summary:       "Generate a quiz from a Wikipedia article",
		DefaultStatus: stdhttp.StatusCreated,
		Errors:        []int{stdhttp.StatusBadRequest, stdhttp.StatusInternalServerError},
	}, s.generateHandler)
}

func (s *Server) registerListRoute() {
	huma.Get(s.api, "/api/quizzes", s.listHandler, func(op *huma.Operation) {
		op.Summary = "List recent quizzes"
	})
}

func (s *Server) registerGetRoute() {
	huma.Get(s.api, "/api/quizzes/{id}", s.getHandler, func(op *huma.Operation) {
		op.Summary = "Fetch a quiz"
		op.Errors = []int{stdhttp.StatusNotFound}
	})
}

func (s *Server) registerDeleteRoute() {
	huma.Delete(s.api, "/api/quizzes/{id}", s.deleteHandler, func(op *huma.Operation) {
		op.Summary = "Delete a quiz"
		op.Errors = []int{stdhttp.StatusNotFound}
	})
}

func (s *Server) registerQuizPageRoute() {
	huma.Get(s.api, "/quizzes/{id}", s.quizPageHandler, htmlOperation(
		"Render a quiz",
		stdhttp.StatusNotFound,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) rootHandler(_ context.Context, _ *struct{}) (*bannerOutput, error) {
	resp := &bannerOutput{}
	resp.Body.Message = serviceName
	resp.Body.Version = s.version
	return resp, nil
}

func (s *Server) generateHandler(ctx context.Context, input *generateQuizInput) (*quizOutput, error) {
	result, err := s.quizzes.Generate(ctx, input.Body.URL)
	if err != nil {
		return nil, s.apiError(ctx, err, "generating quiz", logrus.Fields{"url": input.Body.URL})
	}

	status := stdhttp.StatusCreated
	if result.Cached {
		status = stdhttp.StatusOK
	}

	return &quizOutput{Status: status, Body: newQuizBody(result.Record)}, nil
}

func (s *Server) listHandler(ctx context.Context, input *listQuizzesInput) (*listQuizzesOutput, error) {
	summaries, err := s.quizzes.List(ctx, input.Limit)
	if err != nil {
		return nil, s.apiError(ctx, err, "listing quizzes", nil)
	}

	resp := &listQuizzesOutput{Body: make([]quizSummaryBody, 0, len(summaries))}
	for _, summary := range summaries {
		resp.Body = append(resp.Body, quizSummaryBody{
			ID:        summary.ID,
			URL:       summary.Address,
			Title:     summary.Title,
			CreatedAt: summary.CreatedAt,
		})
	}

	return resp, nil
}

func (s *Server) getHandler(ctx context.Context, input *quizIDInput) (*quizOutput, error) {
	record, err := s.loadQuiz(ctx, input.ID)
	if err != nil {
		return nil, s.apiError(ctx, err, "loading quiz", logrus.Fields{"id": input.ID})
	}

	return &quizOutput{Status: stdhttp.StatusOK, Body: newQuizBody(record)}, nil
}

func (s *Server) deleteHandler(ctx context.Context, input *quizIDInput) (*messageOutput, error) {
	if input.ID <= 0 {
		return nil, s.apiError(ctx, eris.Wrap(quiz.ErrNotFound, "deleting quiz"), "deleting quiz", logrus.Fields{"id": input.ID})
	}

	if err := s.quizzes.Delete(ctx, uint(input.ID)); err != nil {
		return nil, s.apiError(ctx, err, "deleting quiz", logrus.Fields{"id": input.ID})
	}

	resp := &messageOutput{}
	resp.Body.Message = quizDeletedMessage
	return resp, nil
}

func (s *Server) quizPageHandler(ctx context.Context, input *quizIDInput) (*htmlResponse, error) {
	record, err := s.loadQuiz(ctx, input.ID)
	if err != nil {
		status, message := classifyError(err)
		if status >= stdhttp.StatusInternalServerError {
			s.recordError(ctx, err, "loading quiz page", logrus.Fields{"id": input.ID})
		}
		return s.renderErrorResponse(ctx, status, message)
	}

	resp, err := renderPage(ctx, stdhttp.StatusOK, templates.QuizPage(newQuizPageData(record)))
	if err != nil {
		s.recordError(ctx, err, "rendering quiz page", logrus.Fields{"id": input.ID})
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't render this quiz right now.")
	}

	return resp, nil
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{Status: stdhttp.StatusOK}
	resp.Body.Status = "ok"
	resp.Body.Database = "ok"

	if err := db.Ping(ctx, s.db); err != nil {
		s.recordError(ctx, err, "pinging database", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
		return resp, nil
	}

	count, err := s.quizzes.Count(ctx)
	if err != nil {
		s.recordError(ctx, err, "counting quizzes", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
		return resp, nil
	}
	resp.Body.Records = count

	return resp, nil
}

func (s *Server) loadQuiz(ctx context.Context, id int64) (*quiz.Record, error) {
	if id <= 0 {
		return nil, eris.Wrapf(quiz.ErrNotFound, "retrieving quiz: %d", id)
	}
	return s.quizzes.Get(ctx, uint(id))
}

func (s *Server) apiError(ctx context.Context, err error, message string, fields logrus.Fields) error {
	status, detail := classifyError(err)
	if status >= stdhttp.StatusInternalServerError {
		s.recordError(ctx, err, message, fields)
	} else if s.logger != nil {
		entry := s.logger.WithField("error", err.Error()).WithField("status", status)
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		entry.Warn(message)
	}

	return huma.NewError(status, detail)
}

func classifyError(err error) (int, string) {
	switch {
	case err == nil:
		return stdhttp.StatusInternalServerError, errorFallbackMessage
	case eris.Is(err, article.ErrValidation):
		return stdhttp.StatusBadRequest, err.Error()
	case eris.Is(err, quiz.ErrNotFound):
		return stdhttp.StatusNotFound, quizNotFoundMessage
	default:
		return stdhttp.StatusInternalServerError, err.Error()
	}
}

func newQuizBody(record *quiz.Record) quizBody {
	return quizBody{
		ID:            record.ID,
		URL:           record.Address,
		Title:         record.Title,
		Summary:       record.Summary,
		KeyEntities:   record.Entities.Data(),
		Sections:      []string(record.Sections),
		Quiz:          []quiz.Question(record.Quiz),
		RelatedTopics: []string(record.RelatedTopics),
		CreatedAt:     record.CreatedAt,
	}
}

func newQuizPageData(record *quiz.Record) templates.QuizPageData {
	entities := record.Entities.Data()
	data := templates.QuizPageData{
		Title:     record.Title,
		SourceURL: record.Address,
		Summary:   record.Summary,
		Sections:  []string(record.Sections),
		Entities: []templates.EntityGroupView{
			{Label: "People", Names: entities.People},
			{Label: "Organizations", Names: entities.Organizations},
			{Label: "Locations", Names: entities.Locations},
		},
		RelatedTopics: []string(record.RelatedTopics),
		CreatedAt:     record.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
	}

	data.Questions = make([]templates.QuestionView, 0, len(record.Quiz))
	for i, question := range record.Quiz {
		view := templates.QuestionView{
			Number:      i + 1,
			Question:    question.Question,
			Options:     question.Options,
			Answer:      question.Answer,
			Difficulty:  question.Difficulty,
			Explanation: question.Explanation,
		}
		if question.SectionReference != nil {
			view.SectionReference = *question.SectionReference
		}
		data.Questions = append(data.Questions, view)
	}

	return data
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
