package quiz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"wikiquiz/app/internal/article"
)

const turingAddress = article.AddressPrefix + "Alan_Turing"

type stubFetcher struct {
	html    string
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, address string) (string, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

type stubExtractor struct {
	record *article.Record
	err    error
	calls  atomic.Int32
}

func (e *stubExtractor) Extract(address, rawHTML string) (*article.Record, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	copyRecord := *e.record
	copyRecord.Address = address
	return &copyRecord, nil
}

type stubCompleter struct {
	mu      sync.Mutex
	content string
	err     error
	prompts []string
}

func (c *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.content, nil
}

func (c *stubCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

type serviceFixture struct {
	repo      *GormRepository
	fetcher   *stubFetcher
	extractor *stubExtractor
	quizLLM   *stubCompleter
	topicsLLM *stubCompleter
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	return &serviceFixture{
		repo:    setupRepository(t),
		fetcher: &stubFetcher{html: "<html><body>Turing</body></html>"},
		extractor: &stubExtractor{record: &article.Record{
			Title:       "Alan Turing",
			Summary:     "English mathematician.",
			Sections:    []string{"Early life"},
			ArticleText: "Turing was born in London.",
			Entities: article.Entities{
				People:        []string{"Alan Turing"},
				Organizations: []string{"Princeton University"},
				Locations:     nil,
			},
		}},
		quizLLM:   &stubCompleter{content: "```json\n" + sampleQuiz + "\n```"},
		topicsLLM: &stubCompleter{content: `["Enigma", "Bletchley Park"]`},
	}
}

func (f *serviceFixture) service(t *testing.T, storeRawHTML bool) Service {
	t.Helper()

	builder, err := NewPromptBuilder("Quiz on {{.Title}}: {{.ArticleText}}")
	if err != nil {
		t.Fatalf("NewPromptBuilder returned error: %v", err)
	}

	svc, err := NewService(ServiceOptions{
		Repository:      f.repo,
		Fetcher:         f.fetcher,
		Extractor:       f.extractor,
		Prompts:         builder,
		QuizCompleter:   f.quizLLM,
		TopicsCompleter: f.topicsLLM,
		Logger:          silentLogger(),
		StoreRawHTML:    storeRawHTML,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestNewServiceValidatesOptions(t *testing.T) {
	t.Parallel()

	if _, err := NewService(ServiceOptions{}); err == nil {
		t.Fatalf("expected error when collaborators are missing")
	}
}

func TestGenerateCreatesRecord(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	svc := fixture.service(t, false)

	result, err := svc.Generate(context.Background(), " "+turingAddress+"#Early_life ")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if result.Cached {
		t.Fatalf("expected fresh record")
	}
	record := result.Record
	if record.ID == 0 || record.Address != turingAddress {
		t.Fatalf("unexpected record identity: id=%d address=%q", record.ID, record.Address)
	}
	if len(record.Quiz) != 2 || record.Quiz[0].Question != "Who wrote it?" {
		t.Fatalf("unexpected quiz: %#v", record.Quiz)
	}
	if strings.Join(record.RelatedTopics, ",") != "Enigma,Bletchley Park" {
		t.Fatalf("unexpected related topics: %v", record.RelatedTopics)
	}
	if record.Entities.Data().Locations == nil {
		t.Fatalf("expected empty locations bucket instead of nil")
	}
	if record.RawHTML != nil {
		t.Fatalf("expected raw HTML to be omitted")
	}

	if got := fixture.quizLLM.prompts[0]; got != "Quiz on Alan Turing: Turing was born in London." {
		t.Fatalf("unexpected quiz prompt %q", got)
	}
	if got := fixture.topicsLLM.prompts[0]; !strings.Contains(got, "English mathematician.") {
		t.Fatalf("expected topics prompt to carry the summary, got %q", got)
	}
}

func TestGenerateReturnsCachedRecord(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	svc := fixture.service(t, false)
	ctx := context.Background()

	first, err := svc.Generate(ctx, turingAddress)
	if err != nil {
		t.Fatalf("first Generate returned error: %v", err)
	}

	second, err := svc.Generate(ctx, turingAddress)
	if err != nil {
		t.Fatalf("second Generate returned error: %v", err)
	}

	if !second.Cached {
		t.Fatalf("expected second call to be served from cache")
	}
	if second.Record.ID != first.Record.ID {
		t.Fatalf("expected same record id, got %d and %d", first.Record.ID, second.Record.ID)
	}
	if fixture.fetcher.calls.Load() != 1 {
		t.Fatalf("expected a single fetch, got %d", fixture.fetcher.calls.Load())
	}
	if fixture.quizLLM.callCount() != 1 || fixture.topicsLLM.callCount() != 1 {
		t.Fatalf("expected completers to run once, got quiz=%d topics=%d", fixture.quizLLM.callCount(), fixture.topicsLLM.callCount())
	}
}

func TestGenerateRejectsInvalidAddressBeforeNetwork(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	svc := fixture.service(t, false)

	_, err := svc.Generate(context.Background(), "https://de.wikipedia.org/wiki/Alan_Turing")
	if !eris.Is(err, article.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageValidating {
		t.Fatalf("expected validating stage error, got %#v", err)
	}

	if fixture.fetcher.calls.Load() != 0 {
		t.Fatalf("expected no fetch for invalid address")
	}
}

func TestGenerateFailuresPersistNothing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		mutate   func(f *serviceFixture)
		stage    Stage
		sentinel error
	}{
		{
			name:     "fetch",
			mutate:   func(f *serviceFixture) { f.fetcher.err = eris.Wrap(article.ErrFetch, "status 404") },
			stage:    StageFetching,
			sentinel: article.ErrFetch,
		},
		{
			name:     "extract",
			mutate:   func(f *serviceFixture) { f.extractor.err = eris.Wrap(article.ErrExtraction, "title missing") },
			stage:    StageExtracting,
			sentinel: article.ErrExtraction,
		},
		{
			name:   "quiz transport",
			mutate: func(f *serviceFixture) { f.quizLLM.err = eris.New("llm unavailable") },
			stage:  StageGeneratingQuiz,
		},
		{
			name:     "quiz parse",
			mutate:   func(f *serviceFixture) { f.quizLLM.content = "Sorry, I cannot do that." },
			stage:    StageGeneratingQuiz,
			sentinel: ErrParse,
		},
		{
			name:   "topics transport",
			mutate: func(f *serviceFixture) { f.topicsLLM.err = eris.New("llm unavailable") },
			stage:  StageGeneratingTopics,
		},
	}

	for _, tc := range cases {
		fixture := newServiceFixture(t)
		tc.mutate(fixture)
		svc := fixture.service(t, false)

		_, err := svc.Generate(context.Background(), turingAddress)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}

		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			t.Fatalf("%s: expected StageError, got %T", tc.name, err)
		}
		if stageErr.Stage != tc.stage {
			t.Errorf("%s: expected stage %s, got %s", tc.name, tc.stage, stageErr.Stage)
		}
		if tc.sentinel != nil && !eris.Is(err, tc.sentinel) {
			t.Errorf("%s: expected error to match sentinel, got %v", tc.name, err)
		}

		count, countErr := fixture.repo.CountRecords(context.Background())
		if countErr != nil {
			t.Fatalf("%s: CountRecords returned error: %v", tc.name, countErr)
		}
		if count != 0 {
			t.Errorf("%s: expected nothing persisted, found %d records", tc.name, count)
		}
	}
}

func TestGenerateFallsBackOnUnparsableTopics(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	fixture.topicsLLM.content = "Enigma; Bletchley Park"
	svc := fixture.service(t, false)

	result, err := svc.Generate(context.Background(), turingAddress)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if strings.Join(result.Record.RelatedTopics, ",") != "History,Science,Technology" {
		t.Fatalf("expected fallback topics, got %v", result.Record.RelatedTopics)
	}
}

func TestGenerateStoresCappedRawHTML(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	fixture.fetcher.html = strings.Repeat("é", MaxRawHTMLRunes+10)
	svc := fixture.service(t, true)

	result, err := svc.Generate(context.Background(), turingAddress)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if result.Record.RawHTML == nil {
		t.Fatalf("expected raw HTML to be stored")
	}
	if got := len([]rune(*result.Record.RawHTML)); got != MaxRawHTMLRunes {
		t.Fatalf("expected %d runes of raw HTML, got %d", MaxRawHTMLRunes, got)
	}
}

func TestGenerateCoalescesConcurrentRequests(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	fixture.fetcher.started = make(chan struct{}, 2)
	fixture.fetcher.release = make(chan struct{})
	svc := fixture.service(t, false)

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Generate(context.Background(), turingAddress)
	}()
	<-fixture.fetcher.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = svc.Generate(context.Background(), turingAddress)
	}()

	close(fixture.fetcher.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d returned error: %v", i, err)
		}
	}

	if fixture.fetcher.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fixture.fetcher.calls.Load())
	}
	if results[0].Record.ID != results[1].Record.ID {
		t.Fatalf("expected both requests to see the same record")
	}
	if results[0].Cached == results[1].Cached {
		t.Fatalf("expected exactly one request to report a fresh record, got cached=%v/%v", results[0].Cached, results[1].Cached)
	}
}

func TestGenerateSurvivesCancelledFirstCaller(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	fixture.fetcher.started = make(chan struct{}, 2)
	fixture.fetcher.release = make(chan struct{})
	svc := fixture.service(t, false)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Generate(firstCtx, turingAddress)
		firstErr <- err
	}()
	<-fixture.fetcher.started

	type outcome struct {
		result *Result
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		result, err := svc.Generate(context.Background(), turingAddress)
		second <- outcome{result: result, err: err}
	}()

	// Give the second caller time to join the running generation.
	time.Sleep(50 * time.Millisecond)
	cancelFirst()

	if err := <-firstErr; err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("expected cancelled caller to stop waiting, got %v", err)
	}

	close(fixture.fetcher.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second caller returned error: %v", got.err)
	}
	if got.result == nil || got.result.Record == nil || got.result.Record.ID == 0 {
		t.Fatalf("expected stored record for second caller, got %#v", got.result)
	}
	if fixture.fetcher.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", fixture.fetcher.calls.Load())
	}

	count, err := fixture.repo.CountRecords(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected generation to persist one record, got %d (%v)", count, err)
	}
}

func TestGenerateReturnsWhenCallerCancels(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	fixture.fetcher.started = make(chan struct{}, 1)
	fixture.fetcher.release = make(chan struct{})
	svc := fixture.service(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(ctx, turingAddress)
		done <- err
	}()

	<-fixture.fetcher.started
	cancel()

	if err := <-done; err == nil {
		t.Fatalf("expected error for cancelled caller")
	}

	close(fixture.fetcher.release)

	// The abandoned generation still completes and serves later callers from storage.
	var count int64
	for i := 0; i < 100 && count == 0; i++ {
		time.Sleep(10 * time.Millisecond)
		count, _ = fixture.repo.CountRecords(context.Background())
	}
	if count != 1 {
		t.Fatalf("expected abandoned generation to persist, got %d records", count)
	}
}

func TestGetListDelete(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t)
	svc := fixture.service(t, false)
	ctx := context.Background()

	created, err := svc.Generate(ctx, turingAddress)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	loaded, err := svc.Get(ctx, created.Record.ID)
	if err != nil || loaded.Title != "Alan Turing" {
		t.Fatalf("Get returned %v, %v", loaded, err)
	}

	summaries, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != created.Record.ID {
		t.Fatalf("unexpected summaries: %#v", summaries)
	}

	if err := svc.Delete(ctx, created.Record.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if _, err := svc.Get(ctx, created.Record.ID); !eris.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, created.Record.ID); !eris.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	count, err := svc.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected zero records, got %d (%v)", count, err)
	}
}
