package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/grading"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/segmenter"
	"github.com/noah-isme/autograde-api/internal/similarity"
)

const solutionDoc = `Networks midterm
1) What is TCP?
TCP is a reliable, ordered, connection-oriented stream protocol.
keywords: reliable, ordered, connection (10 pts)
2) Define UDP (5 pts)
UDP is a connectionless datagram protocol.`

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []interface{}
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published(subject string) []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []interface{}
	for i, s := range p.subjects {
		if s == subject {
			out = append(out, p.events[i])
		}
	}
	return out
}

type stubArchive struct {
	names []string
	err   error
}

func (a *stubArchive) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	a.names = append(a.names, name)
	return "https://archive.test/" + name, nil
}

type testEnv struct {
	db          *gorm.DB
	exams       repository.ExamRepository
	submissions repository.SubmissionRepository
	flags       repository.SimilarityFlagRepository
	documents   repository.SourceDocumentRepository

	examService       ExamService
	gradingService    GradingService
	similarityService SimilarityService
	ingestionService  IngestionService
	submissionService SubmissionService

	publisher *recordingPublisher
	archive   *stubArchive
}

type envOptions struct {
	mode     string
	embedder similarity.Embedder
	registry *extractor.Registry
	cfg      IngestionConfig
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := testLogger()

	env := &testEnv{
		db:          db,
		exams:       repository.NewExamRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		flags:       repository.NewSimilarityFlagRepository(db),
		documents:   repository.NewSourceDocumentRepository(db),
		publisher:   &recordingPublisher{},
		archive:     &stubArchive{},
	}

	simEngine, err := similarity.NewEngine(opts.embedder, similarity.DefaultThresholds(), logger)
	require.NoError(t, err)
	gradeEngine, err := grading.NewEngine(grading.DefaultWeights())
	require.NoError(t, err)

	env.examService = NewExamService(env.exams, validate, logger)
	env.similarityService = NewSimilarityService(env.exams, env.submissions, env.flags, simEngine, env.publisher, validate, time.Minute, logger)
	trigger := NewSimilarityTrigger(opts.mode, env.similarityService, env.publisher, logger)
	env.gradingService = NewGradingService(env.submissions, env.exams, gradeEngine, trigger, env.publisher, logger)
	env.ingestionService = NewIngestionService(
		env.exams, env.submissions, env.documents,
		extractor.New(opts.registry), segmenter.NewDefault(),
		env.gradingService, env.archive, validate, opts.cfg, logger,
	)
	env.submissionService = NewSubmissionService(env.submissions, validate, logger)

	return env
}

// openExam creates an exam for professor 7 and ingests the networks solution.
func (e *testEnv) openExam(t *testing.T) dto.ExamResponse {
	t.Helper()
	ctx := context.Background()

	exam, err := e.examService.Create(ctx, 7, dto.ExamCreateRequest{
		Title: "Networks midterm",
		DueAt: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	_, err = e.ingestionService.IngestSolution(ctx, exam.ID, []byte(solutionDoc), "text/plain")
	require.NoError(t, err)

	exam, err = e.examService.Get(ctx, exam.ID, true)
	require.NoError(t, err)
	require.Equal(t, models.ExamStatusOpen, exam.Status)
	return exam
}
