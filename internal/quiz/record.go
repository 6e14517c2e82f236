package quiz

import (
	"time"

	"gorm.io/datatypes"

	"wikiquiz/app/internal/article"
)

// Question is a single generated multiple-choice question.
type Question struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	Answer           string   `json:"answer"`
	Difficulty       string   `json:"difficulty"`
	Explanation      string   `json:"explanation"`
	SectionReference *string  `json:"section_reference,omitempty"`
}

// Record is the persisted quiz for one article address. Rows are never updated, only deleted.
type Record struct {
	ID            uint                                 `gorm:"primaryKey"`
	Address       string                               `gorm:"size:512;uniqueIndex:idx_quiz_records_address;not null"`
	Title         string                               `gorm:"size:512;not null"`
	Summary       string                               `gorm:"type:text"`
	Sections      datatypes.JSONSlice[string]          `gorm:"not null"`
	ArticleText   string                               `gorm:"type:text"`
	Entities      datatypes.JSONType[article.Entities] `gorm:"not null"`
	Quiz          datatypes.JSONSlice[Question]        `gorm:"not null"`
	RelatedTopics datatypes.JSONSlice[string]          `gorm:"not null"`
	RawHTML       *string                              `gorm:"type:text"`
	CreatedAt     time.Time                            `gorm:"index:idx_quiz_records_created_at"`
}

// TableName defines the table name for the Record model.
func (Record) TableName() string {
	return "quiz_records"
}

// Summary is the listing view of a Record.
type Summary struct {
	ID        uint
	Address   string
	Title     string
	CreatedAt time.Time
}
