package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/extractor"
	"github.com/noah-isme/autograde-api/internal/models"
	"github.com/noah-isme/autograde-api/internal/observability"
	"github.com/noah-isme/autograde-api/internal/repository"
	"github.com/noah-isme/autograde-api/internal/segmenter"
)

// DocumentArchive keeps a copy of raw uploads for auditing.
type DocumentArchive interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// IngestionConfig bounds document processing.
type IngestionConfig struct {
	ExtractionTimeout time.Duration
	MaxUploadBytes    int64
}

// IngestionService turns uploaded documents into questions and submissions.
type IngestionService interface {
	IngestSolution(ctx context.Context, examID uint, data []byte, contentType string) (dto.SolutionIngestResponse, error)
	IngestSubmission(ctx context.Context, examID, studentID uint, data []byte, contentType string) (dto.SubmissionResponse, error)
	IngestAnswers(ctx context.Context, examID, studentID uint, payload dto.SubmissionAnswersRequest) (dto.SubmissionResponse, error)
}

type ingestionService struct {
	exams       repository.ExamRepository
	submissions repository.SubmissionRepository
	documents   repository.SourceDocumentRepository
	extractor   *extractor.Extractor
	segmenter   *segmenter.Segmenter
	grader      GradingService
	archive     DocumentArchive
	validator   *validator.Validate
	cfg         IngestionConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewIngestionService constructs the ingestion service. archive may be nil.
func NewIngestionService(
	exams repository.ExamRepository,
	submissions repository.SubmissionRepository,
	documents repository.SourceDocumentRepository,
	ext *extractor.Extractor,
	seg *segmenter.Segmenter,
	grader GradingService,
	archive DocumentArchive,
	validate *validator.Validate,
	cfg IngestionConfig,
	logger zerolog.Logger,
) IngestionService {
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = 20 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	return &ingestionService{
		exams:       exams,
		submissions: submissions,
		documents:   documents,
		extractor:   ext,
		segmenter:   seg,
		grader:      grader,
		archive:     archive,
		validator:   validate,
		cfg:         cfg,
		logger:      logger.With().Str("component", "ingestion_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/autograde-api/internal/service/ingestion"),
		now:         time.Now,
	}
}

func (s *ingestionService) IngestSolution(ctx context.Context, examID uint, data []byte, contentType string) (dto.SolutionIngestResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.solution", trace.WithAttributes(
		attribute.Int64("ingestion.exam_id", int64(examID)),
		attribute.Int("ingestion.bytes", len(data)),
	))
	defer span.End()

	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		span.RecordError(err)
		return dto.SolutionIngestResponse{}, err
	}

	count, err := s.submissions.CountByExam(ctx, exam.ID)
	if err != nil {
		span.RecordError(err)
		return dto.SolutionIngestResponse{}, err
	}
	if count > 0 {
		span.SetStatus(codes.Error, "questions_locked")
		return dto.SolutionIngestResponse{}, ErrQuestionsLocked
	}

	extracted, err := s.extract(ctx, models.DocumentKindSolution, data, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction_failed")
		return dto.SolutionIngestResponse{}, err
	}

	result := s.segmenter.SegmentSolution(extracted.blocks)
	questions := make([]models.Question, 0, len(result.Questions))
	for _, q := range result.Questions {
		questions = append(questions, models.Question{
			Index:         q.Index,
			Prompt:        q.Prompt,
			MaxPoints:     q.MaxPoints,
			ReferenceText: q.Reference,
			Keywords:      q.Keywords,
		})
	}

	stored, err := s.exams.ReplaceQuestions(ctx, exam.ID, questions)
	if err != nil {
		if errors.Is(err, repository.ErrHasSubmissions) {
			span.SetStatus(codes.Error, "questions_locked")
			return dto.SolutionIngestResponse{}, ErrQuestionsLocked
		}
		span.RecordError(err)
		return dto.SolutionIngestResponse{}, err
	}

	s.record(ctx, models.SourceDocument{
		ExamID:         exam.ID,
		Kind:           models.DocumentKindSolution,
		GrammarVersion: result.GrammarVersion,
	}, data, extracted)

	span.SetAttributes(attribute.Int("ingestion.questions", len(stored)))
	s.logger.Info().
		Uint("exam_id", exam.ID).
		Int("questions", len(stored)).
		Float64("total_points", result.TotalPoints).
		Int("warnings", len(result.Warnings)).
		Msg("solution ingested")

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return dto.SolutionIngestResponse{
		ExamID:            exam.ID,
		GrammarVersion:    result.GrammarVersion,
		QuestionsDetected: len(stored),
		TotalPoints:       result.TotalPoints,
		Questions:         dto.NewQuestionResponseSlice(stored),
		Warnings:          warnings,
	}, nil
}

func (s *ingestionService) IngestSubmission(ctx context.Context, examID, studentID uint, data []byte, contentType string) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.submission", trace.WithAttributes(
		attribute.Int64("ingestion.exam_id", int64(examID)),
		attribute.Int64("ingestion.student_id", int64(studentID)),
		attribute.Int("ingestion.bytes", len(data)),
	))
	defer span.End()

	exam, now, err := s.admit(ctx, span, examID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	extracted, err := s.extract(ctx, models.DocumentKindSubmission, data, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction_failed")
		return dto.SubmissionResponse{}, err
	}

	questionIDs := make(map[int]uint, len(exam.Questions))
	indices := make([]int, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		questionIDs[q.Index] = q.ID
		indices = append(indices, q.Index)
	}

	result := s.segmenter.SegmentSubmission(extracted.blocks, indices)
	answers := make([]models.Answer, 0, len(result.Answers))
	for _, segment := range result.Answers {
		answer := models.Answer{DetectedIndex: segment.Index, Text: segment.Text}
		if id, ok := questionIDs[segment.Index]; ok && segment.Matched {
			questionID := id
			answer.QuestionID = &questionID
		}
		answers = append(answers, answer)
	}

	submission := models.Submission{
		ExamID:      exam.ID,
		StudentID:   studentID,
		Status:      models.SubmissionStatusPending,
		SubmittedAt: now,
		Warnings:    result.Warnings,
		Answers:     answers,
	}
	if err := s.create(ctx, span, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submissionID := submission.ID
	s.record(ctx, models.SourceDocument{
		ExamID:         exam.ID,
		SubmissionID:   &submissionID,
		Kind:           models.DocumentKindSubmission,
		GrammarVersion: result.GrammarVersion,
	}, data, extracted)

	return s.gradeStored(ctx, span, submission)
}

// IngestAnswers stores answers typed directly against question ids and grades
// them like an uploaded document.
func (s *ingestionService) IngestAnswers(ctx context.Context, examID, studentID uint, payload dto.SubmissionAnswersRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.answers", trace.WithAttributes(
		attribute.Int64("ingestion.exam_id", int64(examID)),
		attribute.Int64("ingestion.student_id", int64(studentID)),
		attribute.Int("ingestion.answers", len(payload.Answers)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	exam, now, err := s.admit(ctx, span, examID, studentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	byID := make(map[uint]models.Question, len(exam.Questions))
	for _, q := range exam.Questions {
		byID[q.ID] = q
	}

	seen := make(map[uint]struct{}, len(payload.Answers))
	answers := make([]models.Answer, 0, len(payload.Answers))
	for _, input := range payload.Answers {
		question, ok := byID[input.QuestionID]
		if !ok {
			span.SetStatus(codes.Error, "unknown_question")
			return dto.SubmissionResponse{}, fmt.Errorf("question %d: %w", input.QuestionID, ErrUnknownQuestion)
		}
		if _, dup := seen[input.QuestionID]; dup {
			span.SetStatus(codes.Error, "duplicate_answer")
			return dto.SubmissionResponse{}, fmt.Errorf("question %d: %w", input.QuestionID, ErrDuplicateAnswer)
		}
		seen[input.QuestionID] = struct{}{}

		questionID := question.ID
		answers = append(answers, models.Answer{
			QuestionID:    &questionID,
			DetectedIndex: question.Index,
			Text:          strings.Join(strings.Fields(input.Text), " "),
		})
	}

	submission := models.Submission{
		ExamID:      exam.ID,
		StudentID:   studentID,
		Status:      models.SubmissionStatusPending,
		SubmittedAt: now,
		Warnings:    []string{},
		Answers:     answers,
	}
	if err := s.create(ctx, span, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return s.gradeStored(ctx, span, submission)
}

// admit loads the exam and checks it accepts a first submission from studentID.
func (s *ingestionService) admit(ctx context.Context, span trace.Span, examID, studentID uint) (models.Exam, time.Time, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		span.RecordError(err)
		return models.Exam{}, time.Time{}, err
	}

	now := s.now().UTC()
	switch exam.Status(now, len(exam.Questions)) {
	case models.ExamStatusClosed:
		span.SetStatus(codes.Error, "exam_closed")
		return models.Exam{}, time.Time{}, ErrExamClosed
	case models.ExamStatusDraft:
		span.SetStatus(codes.Error, "exam_not_gradable")
		return models.Exam{}, time.Time{}, ErrExamNotGradable
	}

	exists, err := s.submissions.Exists(ctx, exam.ID, studentID)
	if err != nil {
		span.RecordError(err)
		return models.Exam{}, time.Time{}, err
	}
	if exists {
		span.SetStatus(codes.Error, "duplicate_submission")
		return models.Exam{}, time.Time{}, ErrDuplicateSubmission
	}
	return exam, now, nil
}

func (s *ingestionService) create(ctx context.Context, span trace.Span, submission *models.Submission) error {
	if err := s.submissions.Create(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			span.SetStatus(codes.Error, "duplicate_submission")
			return ErrDuplicateSubmission
		}
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int64("ingestion.submission_id", int64(submission.ID)))
	return nil
}

// gradeStored grades a persisted submission and returns its stored state.
func (s *ingestionService) gradeStored(ctx context.Context, span trace.Span, submission models.Submission) (dto.SubmissionResponse, error) {
	// The stored record reflects the outcome either way; a failed grade
	// leaves the submission FAILED and retryable.
	if _, err := s.grader.Grade(ctx, submission.ID); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("submission stored but grading failed")
	}

	stored, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Uint("exam_id", stored.ExamID).
		Uint("submission_id", stored.ID).
		Str("status", string(stored.Status)).
		Int("answers", len(submission.Answers)).
		Int("warnings", len(submission.Warnings)).
		Msg("submission ingested")

	return dto.NewSubmissionResponse(stored), nil
}

type extraction struct {
	contentType string
	pages       int
	blocks      []extractor.Block
	text        string
}

// extract converts data under the extraction timeout. Conversion runs in its
// own goroutine so a converter that ignores cancellation cannot hold the
// request past the deadline.
func (s *ingestionService) extract(ctx context.Context, kind models.DocumentKind, data []byte, contentType string) (extraction, error) {
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		observability.ExtractionFailures().WithLabelValues(string(kind), "too_large").Inc()
		return extraction{}, ErrDocumentTooLarge
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExtractionTimeout)
	defer cancel()

	type outcome struct {
		result extraction
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		doc, err := s.extractor.Extract(ctx, data, contentType)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		result := extraction{contentType: doc.ContentType, pages: doc.NumPages()}
		var text bytes.Buffer
		for block, err := range doc.Blocks() {
			if err != nil {
				done <- outcome{err: fmt.Errorf("%v: %w", err, extractor.ErrExtractionFailed)}
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				done <- outcome{err: ctxErr}
				return
			}
			result.blocks = append(result.blocks, block)
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(block.Text)
		}
		result.text = text.String()
		done <- outcome{result: result}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	if out.err != nil {
		err := classifyExtractionError(out.err)
		observability.ExtractionFailures().WithLabelValues(string(kind), extractionReason(err)).Inc()
		s.logger.Warn().Err(out.err).Str("kind", string(kind)).Msg("document extraction failed")
		return extraction{}, err
	}

	observability.ExtractionDuration().WithLabelValues(string(kind), out.result.contentType).Observe(time.Since(start).Seconds())
	return out.result, nil
}

func classifyExtractionError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: extraction timed out", ErrEngineUnavailable)
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrExtractionFailed), errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%v: %w", err, ErrExtractionFailed)
	}
}

func extractionReason(err error) string {
	switch {
	case errors.Is(err, ErrEngineUnavailable):
		return "timeout"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "corrupt"
	}
}

// record stores the audit copy of an ingested document. Failures are logged
// only; the questions or submission are already committed.
func (s *ingestionService) record(ctx context.Context, doc models.SourceDocument, data []byte, extracted extraction) {
	sum := sha256.Sum256(data)
	doc.Checksum = hex.EncodeToString(sum[:])
	doc.ContentType = extracted.contentType
	doc.SizeBytes = int64(len(data))
	doc.PageCount = extracted.pages
	doc.ExtractedText = extracted.text

	if s.archive != nil {
		name := fmt.Sprintf("exam-%d-%s-%s", doc.ExamID, doc.Kind, doc.Checksum[:12])
		url, err := s.archive.Upload(ctx, name, bytes.NewReader(data))
		if err != nil {
			s.logger.Warn().Err(err).Uint("exam_id", doc.ExamID).Msg("failed to archive source document")
		} else {
			doc.ArchiveURL = url
		}
	}

	if err := s.documents.Create(ctx, &doc); err != nil {
		s.logger.Warn().Err(err).Uint("exam_id", doc.ExamID).Str("kind", string(doc.Kind)).Msg("failed to record source document")
	}
}

func (s *ingestionService) loadExam(ctx context.Context, examID uint) (models.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, ErrExamNotFound
		}
		return models.Exam{}, err
	}
	return exam, nil
}
