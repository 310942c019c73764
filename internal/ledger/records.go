// Package ledger enforces write-once semantics on attendance and marks.
package ledger

import (
	"math"
	"time"
)

// Subject is a course that attendance and marks are recorded against.
type Subject struct {
	ID   int64  `json:"subject_id"`
	Name string `json:"subject_name"`
}

// AttendanceRecord is keyed by (student, subject, date) and never changes
// once written.
type AttendanceRecord struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	FacultyID   string    `json:"faculty_id"`
	SubjectID   int64     `json:"subject_id"`
	SubjectName string    `json:"subject_name,omitempty"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarksRecord is keyed by (student, subject). FacultyID is the uploader and
// the only principal allowed to correct it.
type MarksRecord struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	FacultyID     string    `json:"faculty_id"`
	SubjectID     int64     `json:"subject_id"`
	SubjectName   string    `json:"subject_name,omitempty"`
	MarksObtained float64   `json:"marks_obtained"`
	MaxMarks      float64   `json:"max_marks"`
	CreatedAt     time.Time `json:"created_at"`
}

// Percentage is MarksObtained relative to MaxMarks.
func (m MarksRecord) Percentage() float64 {
	if m.MaxMarks <= 0 {
		return 0
	}
	return round2(m.MarksObtained / m.MaxMarks * 100)
}

// AttendanceBatch marks one subject and date for many students.
type AttendanceBatch struct {
	FacultyID string            `json:"faculty_id"`
	SubjectID int64             `json:"subject_id"`
	Date      string            `json:"date"`
	Statuses  map[string]string `json:"statusMap"`
}

// MarksBatch uploads one subject's marks for many students.
type MarksBatch struct {
	FacultyID string             `json:"faculty_id"`
	SubjectID int64              `json:"subject_id"`
	MaxMarks  float64            `json:"max_marks"`
	Marks     map[string]float64 `json:"marksMap"`
}

// WriteResult counts what a batch did.
type WriteResult struct {
	Created   int `json:"created"`
	Unchanged int `json:"unchanged"`
}

// SubjectAttendance summarises one subject for a student.
type SubjectAttendance struct {
	SubjectID   int64   `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Present     int     `json:"present"`
	Total       int     `json:"total"`
	Percentage  float64 `json:"percentage"`
}

// StudentAttendance is a student's own attendance view.
type StudentAttendance struct {
	Records  []AttendanceRecord  `json:"records"`
	Subjects []SubjectAttendance `json:"subjects"`
}

// SubjectResult is one subject line on a student's results.
type SubjectResult struct {
	MarksRecord
	Percentage float64 `json:"percentage"`
}

// StudentResults is a student's own results view.
type StudentResults struct {
	Subjects          []SubjectResult `json:"subjects"`
	TotalObtained     float64         `json:"total_obtained"`
	TotalMax          float64         `json:"total_max"`
	OverallPercentage float64         `json:"overall_percentage"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
