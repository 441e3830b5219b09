package model

import "time"

// PlatformExport is the top-level JSON structure for exam export.
type PlatformExport struct {
	ExportedAt time.Time  `json:"exported_at"`
	ExamCount  int        `json:"exam_count"`
	Exams      []ExamDump `json:"exams"`
}

// ExamDump holds one exam and its full question sequence for export.
type ExamDump struct {
	Exam      Exam           `json:"exam"`
	OwnerName string         `json:"owner_name"`
	Questions []ExamQuestion `json:"questions"`
}
