package models

import "time"

// SimilarityFlag records a suspiciously similar pair of answers. Flags are
// never updated; SubmissionAID is always the smaller id.
type SimilarityFlag struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ExamID        uint      `gorm:"not null;uniqueIndex:idx_similarity_flags_pair" json:"exam_id"`
	QuestionID    uint      `gorm:"not null;uniqueIndex:idx_similarity_flags_pair" json:"question_id"`
	SubmissionAID uint      `gorm:"not null;uniqueIndex:idx_similarity_flags_pair;index" json:"submission_a_id"`
	SubmissionBID uint      `gorm:"not null;uniqueIndex:idx_similarity_flags_pair;index" json:"submission_b_id"`
	QuestionIndex int       `gorm:"not null" json:"question_index"`
	SemanticScore float64   `gorm:"not null" json:"semantic_score"`
	JaccardScore  float64   `gorm:"not null" json:"jaccard_score"`
	Reason        string    `gorm:"size:255;not null" json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// DocumentKind distinguishes solution documents from student submissions.
type DocumentKind string

const (
	// DocumentKindSolution is a professor's solution document.
	DocumentKindSolution DocumentKind = "solution"
	// DocumentKindSubmission is a student's answer document.
	DocumentKindSubmission DocumentKind = "submission"
)

// SourceDocument keeps the extracted text of an ingested document so parsing
// can be audited.
type SourceDocument struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	ExamID         uint         `gorm:"not null;index" json:"exam_id"`
	SubmissionID   *uint        `gorm:"index" json:"submission_id"`
	Kind           DocumentKind `gorm:"size:16;not null" json:"kind"`
	ContentType    string       `gorm:"size:128;not null" json:"content_type"`
	Checksum       string       `gorm:"size:64;not null" json:"checksum"`
	SizeBytes      int64        `gorm:"not null" json:"size_bytes"`
	PageCount      int          `json:"page_count"`
	ArchiveURL     string       `gorm:"size:512" json:"archive_url"`
	GrammarVersion string       `gorm:"size:32" json:"grammar_version"`
	ExtractedText  string       `gorm:"type:text" json:"extracted_text"`
	CreatedAt      time.Time    `json:"created_at"`
}

// All lists every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&Exam{},
		&Question{},
		&Submission{},
		&Answer{},
		&SimilarityFlag{},
		&SourceDocument{},
	}
}
