package quiz

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"wikiquiz/app/internal/article"
	"wikiquiz/app/internal/llm"
)

// MaxRawHTMLRunes caps the copy of the source document kept alongside a record.
const MaxRawHTMLRunes = 50000

// Stage names a step of quiz generation.
type Stage string

const (
	StageValidating       Stage = "validating"
	StageCheckingCache    Stage = "checking_cache"
	StageFetching         Stage = "fetching"
	StageExtracting       Stage = "extracting"
	StageBuildingInputs   Stage = "building_inputs"
	StageGeneratingQuiz   Stage = "generating_quiz"
	StageGeneratingTopics Stage = "generating_topics"
	StagePersisting       Stage = "persisting"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// StageError reports the generation step that failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a Generate call. Cached is true when no new record was written.
type Result struct {
	Record *Record
	Cached bool
}

// Service coordinates quiz generation and exposes stored quizzes.
type Service interface {
	Generate(ctx context.Context, address string) (*Result, error)
	List(ctx context.Context, limit int) ([]Summary, error)
	Get(ctx context.Context, id uint) (*Record, error)
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context) (int64, error)
}

// ArticleExtractor turns a fetched document into an article record.
type ArticleExtractor interface {
	Extract(address, rawHTML string) (*article.Record, error)
}

// InputBuilder renders the prompts for an article.
type InputBuilder interface {
	Build(record *article.Record) (Inputs, error)
}

// ServiceOptions wires the service collaborators. TopicsCompleter defaults to QuizCompleter.
type ServiceOptions struct {
	Repository      Repository
	Fetcher         article.Fetcher
	Extractor       ArticleExtractor
	Prompts         InputBuilder
	QuizCompleter   llm.Completer
	TopicsCompleter llm.Completer
	Logger          *logrus.Logger
	SentryHub       *sentry.Hub
	StoreRawHTML    bool
}

type service struct {
	repo         Repository
	fetcher      article.Fetcher
	extractor    ArticleExtractor
	prompts      InputBuilder
	quizLLM      llm.Completer
	topicsLLM    llm.Completer
	logger       *logrus.Logger
	sentryHub    *sentry.Hub
	storeRawHTML bool
	inflight     singleflight.Group
}

var _ Service = (*service)(nil)

// NewService validates the options and constructs the quiz service.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Repository == nil {
		return nil, eris.New("quiz repository is required")
	}
	if opts.Fetcher == nil {
		return nil, eris.New("article fetcher is required")
	}
	if opts.Extractor == nil {
		return nil, eris.New("article extractor is required")
	}
	if opts.Prompts == nil {
		return nil, eris.New("prompt builder is required")
	}
	if opts.QuizCompleter == nil {
		return nil, eris.New("quiz completer is required")
	}

	topics := opts.TopicsCompleter
	if topics == nil {
		topics = opts.QuizCompleter
	}

	return &service{
		repo:         opts.Repository,
		fetcher:      opts.Fetcher,
		extractor:    opts.Extractor,
		prompts:      opts.Prompts,
		quizLLM:      opts.QuizCompleter,
		topicsLLM:    topics,
		logger:       opts.Logger,
		sentryHub:    opts.SentryHub,
		storeRawHTML: opts.StoreRawHTML,
	}, nil
}

func (s *service) Generate(ctx context.Context, address string) (*Result, error) {
	normalized, err := article.NormalizeAddress(address)
	if err != nil {
		return nil, s.fail(logrus.Fields{"address": address}, StageValidating, err)
	}

	// The flight outlives any single caller; fetch and completion timeouts bound it.
	token := new(caller)
	ch := s.inflight.DoChan(normalized, func() (interface{}, error) {
		result, err := s.generate(context.WithoutCancel(ctx), normalized)
		return &flight{result: result, leader: token}, err
	})

	select {
	case <-ctx.Done():
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"address": normalized, "error": ctx.Err().Error()}).Info("quiz request abandoned")
		}
		return nil, eris.Wrapf(ctx.Err(), "waiting for quiz generation: %s", normalized)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		shared := res.Val.(*flight)
		if shared.leader != token {
			// Another caller produced this record.
			return &Result{Record: shared.result.Record, Cached: true}, nil
		}
		return shared.result, nil
	}
}

type caller struct{ _ byte }

type flight struct {
	result *Result
	leader *caller
}

func (s *service) generate(ctx context.Context, address string) (*Result, error) {
	fields := logrus.Fields{"address": address}

	s.logStage(fields, StageCheckingCache)
	existing, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return nil, s.fail(fields, StageCheckingCache, err)
	}
	if existing != nil {
		s.logStage(logrus.Fields{"address": address, "id": existing.ID, "cached": true}, StageDone)
		return &Result{Record: existing, Cached: true}, nil
	}

	s.logStage(fields, StageFetching)
	rawHTML, err := s.fetcher.Fetch(ctx, address)
	if err != nil {
		return nil, s.fail(fields, StageFetching, err)
	}

	s.logStage(fields, StageExtracting)
	source, err := s.extractor.Extract(address, rawHTML)
	if err != nil {
		return nil, s.fail(fields, StageExtracting, err)
	}

	s.logStage(fields, StageBuildingInputs)
	inputs, err := s.prompts.Build(source)
	if err != nil {
		return nil, s.fail(fields, StageBuildingInputs, err)
	}

	s.logStage(fields, StageGeneratingQuiz)
	rawQuiz, err := s.quizLLM.Complete(ctx, inputs.QuizPrompt)
	if err != nil {
		return nil, s.fail(fields, StageGeneratingQuiz, err)
	}
	questions, err := ParseQuiz(rawQuiz)
	if err != nil {
		return nil, s.fail(fields, StageGeneratingQuiz, err)
	}

	s.logStage(fields, StageGeneratingTopics)
	rawTopics, err := s.topicsLLM.Complete(ctx, inputs.TopicsPrompt)
	if err != nil {
		return nil, s.fail(fields, StageGeneratingTopics, err)
	}
	topics := ParseRelatedTopics(rawTopics)

	s.logStage(fields, StagePersisting)
	record := s.newRecord(address, source, questions, topics, rawHTML)
	stored, created, err := s.repo.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, s.fail(fields, StagePersisting, err)
	}

	s.logStage(logrus.Fields{
		"address":   address,
		"id":        stored.ID,
		"questions": len(stored.Quiz),
		"cached":    !created,
	}, StageDone)

	return &Result{Record: stored, Cached: !created}, nil
}

func (s *service) newRecord(address string, source *article.Record, questions []Question, topics []string, rawHTML string) *Record {
	entities := source.Entities
	entities.People = nonNil(entities.People)
	entities.Organizations = nonNil(entities.Organizations)
	entities.Locations = nonNil(entities.Locations)

	record := &Record{
		Address:       address,
		Title:         source.Title,
		Summary:       source.Summary,
		Sections:      datatypes.JSONSlice[string](nonNil(source.Sections)),
		ArticleText:   source.ArticleText,
		Entities:      datatypes.NewJSONType(entities),
		Quiz:          datatypes.JSONSlice[Question](questions),
		RelatedTopics: datatypes.JSONSlice[string](nonNil(topics)),
	}

	if s.storeRawHTML && rawHTML != "" {
		capped := article.TruncateRunes(rawHTML, MaxRawHTMLRunes)
		record.RawHTML = &capped
	}

	return record
}

func (s *service) List(ctx context.Context, limit int) ([]Summary, error) {
	summaries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		s.recordError(logrus.Fields{"limit": limit}, err, "listing quizzes")
		return nil, eris.Wrap(err, "listing quizzes")
	}

	return summaries, nil
}

func (s *service) Get(ctx context.Context, id uint) (*Record, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"id": id}, err, "retrieving quiz")
		return nil, eris.Wrapf(err, "retrieving quiz: %d", id)
	}

	if record == nil {
		return nil, eris.Wrapf(ErrNotFound, "retrieving quiz: %d", id)
	}

	return record, nil
}

func (s *service) Delete(ctx context.Context, id uint) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if eris.Is(err, ErrNotFound) {
			return err
		}
		s.recordError(logrus.Fields{"id": id}, err, "deleting quiz")
		return eris.Wrapf(err, "deleting quiz: %d", id)
	}

	if s.logger != nil {
		s.logger.WithField("id", id).Info("quiz deleted")
	}
	return nil
}

func (s *service) Count(ctx context.Context) (int64, error) {
	count, err := s.repo.CountRecords(ctx)
	if err != nil {
		s.recordError(nil, err, "counting quizzes")
		return 0, eris.Wrap(err, "counting quizzes")
	}

	return count, nil
}

func (s *service) logStage(fields logrus.Fields, stage Stage) {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(fields).WithField("stage", string(stage)).Info("quiz generation")
}

func (s *service) fail(fields logrus.Fields, stage Stage, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}

	failFields := logrus.Fields{"stage": string(StageFailed), "failed_stage": string(stage)}
	for key, value := range fields {
		failFields[key] = value
	}

	if eris.Is(err, article.ErrValidation) {
		if s.logger != nil {
			s.logger.WithFields(failFields).WithField("error", err.Error()).Warn("rejected quiz request")
		}
		return stageErr
	}

	s.recordError(failFields, err, "quiz generation failed")
	return stageErr
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
