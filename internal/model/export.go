package model

import "time"

// GradeExport is the top-level JSON structure for exporting an exam's grades.
type GradeExport struct {
	ExamID     string          `json:"exam_id"`
	Title      string          `json:"title"`
	ExportedAt time.Time       `json:"exported_at"`
	NumGraded  int             `json:"num_graded"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one student's current grade for export.
type StudentResult struct {
	StudentID        string           `json:"student_id"`
	RecordID         string           `json:"record_id"`
	Score            *float64         `json:"score"`
	MaxScore         float64          `json:"max_score"`
	HasOpenQuestions bool             `json:"has_open_questions"`
	Source           string           `json:"source"` // online or upload
	GradedAt         time.Time        `json:"graded_at"`
	Questions        []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Number         int          `json:"number"`
	Type           QuestionType `json:"type,omitempty"`
	StudentAnswer  string       `json:"student_answer"`
	PointsAwarded  float64      `json:"points_awarded"`
	PointsPossible float64      `json:"points_possible"`
	Feedback       string       `json:"feedback"`
	Pending        bool         `json:"pending,omitempty"`
}
