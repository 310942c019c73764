package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"academics/internal/store"
)

// Repository persists subjects, attendance and marks.
type Repository struct {
	q store.Querier
}

// NewRepository creates a repo over a connection or transaction.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx}
}

// InsertSubject stores a subject and returns its id.
func (r *Repository) InsertSubject(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, `INSERT INTO subject (subject_name) VALUES ($1) RETURNING subject_id`, name).Scan(&id)
	return id, err
}

// SubjectByName returns the subject with a case-insensitive name match, or nil.
func (r *Repository) SubjectByName(ctx context.Context, name string) (*Subject, error) {
	return r.subject(ctx, `LOWER(subject_name) = LOWER($1)`, name)
}

// Subject returns the subject with id, or nil.
func (r *Repository) Subject(ctx context.Context, id int64) (*Subject, error) {
	return r.subject(ctx, `subject_id = $1`, id)
}

func (r *Repository) subject(ctx context.Context, where string, arg any) (*Subject, error) {
	var s Subject
	err := r.q.QueryRowContext(ctx, `SELECT subject_id, subject_name FROM subject WHERE `+where, arg).Scan(&s.ID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Subjects lists every subject by id.
func (r *Repository) Subjects(ctx context.Context) ([]Subject, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT subject_id, subject_name FROM subject ORDER BY subject_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Subject{}
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StudentExists reports whether a student with the exact id exists.
func (r *Repository) StudentExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM student WHERE u_id = $1`, id).Scan(&n)
	return n > 0, err
}

const attendanceColumns = `a.id, a.student_id, a.faculty_id, a.subject_id, s.subject_name, a.date, a.status, a.created_at`

func scanAttendance(rows *sql.Rows) ([]AttendanceRecord, error) {
	defer rows.Close()
	out := []AttendanceRecord{}
	for rows.Next() {
		var a AttendanceRecord
		if err := rows.Scan(&a.ID, &a.StudentID, &a.FacultyID, &a.SubjectID, &a.SubjectName, &a.Date, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Attendance returns the record for the key, or nil.
func (r *Repository) Attendance(ctx context.Context, studentID string, subjectID int64, date time.Time) (*AttendanceRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance a JOIN subject s ON s.subject_id = a.subject_id
		WHERE a.student_id = $1 AND a.subject_id = $2 AND a.date = $3
	`, studentID, subjectID, date)
	if err != nil {
		return nil, err
	}
	recs, err := scanAttendance(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// InsertAttendance stores a new record.
func (r *Repository) InsertAttendance(ctx context.Context, a AttendanceRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, faculty_id, subject_id, date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.StudentID, a.FacultyID, a.SubjectID, a.Date, a.Status, a.CreatedAt)
	return err
}

// AttendanceOn lists the records of one subject on one date.
func (r *Repository) AttendanceOn(ctx context.Context, subjectID int64, date time.Time) ([]AttendanceRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance a JOIN subject s ON s.subject_id = a.subject_id
		WHERE a.subject_id = $1 AND a.date = $2
		ORDER BY a.student_id
	`, subjectID, date)
	if err != nil {
		return nil, err
	}
	return scanAttendance(rows)
}

// AttendanceOf lists a student's records, newest date first.
func (r *Repository) AttendanceOf(ctx context.Context, studentID string) ([]AttendanceRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance a JOIN subject s ON s.subject_id = a.subject_id
		WHERE a.student_id = $1
		ORDER BY a.date DESC, a.subject_id
	`, studentID)
	if err != nil {
		return nil, err
	}
	return scanAttendance(rows)
}

const marksColumns = `m.id, m.student_id, m.faculty_id, m.subject_id, s.subject_name, m.marks_obtained, m.max_marks, m.created_at`

func scanMarks(rows *sql.Rows) ([]MarksRecord, error) {
	defer rows.Close()
	out := []MarksRecord{}
	for rows.Next() {
		var m MarksRecord
		if err := rows.Scan(&m.ID, &m.StudentID, &m.FacultyID, &m.SubjectID, &m.SubjectName, &m.MarksObtained, &m.MaxMarks, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Marks returns the record for the key, or nil.
func (r *Repository) Marks(ctx context.Context, studentID string, subjectID int64) (*MarksRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+marksColumns+`
		FROM marks m JOIN subject s ON s.subject_id = m.subject_id
		WHERE m.student_id = $1 AND m.subject_id = $2
	`, studentID, subjectID)
	if err != nil {
		return nil, err
	}
	recs, err := scanMarks(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// InsertMarks stores a new record.
func (r *Repository) InsertMarks(ctx context.Context, m MarksRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO marks (id, student_id, faculty_id, subject_id, marks_obtained, max_marks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.StudentID, m.FacultyID, m.SubjectID, m.MarksObtained, m.MaxMarks, m.CreatedAt)
	return err
}

// SetMarks overwrites the value of an existing record.
func (r *Repository) SetMarks(ctx context.Context, id string, value float64) error {
	_, err := r.q.ExecContext(ctx, `UPDATE marks SET marks_obtained = $1 WHERE id = $2`, value, id)
	return err
}

// MarksByFaculty lists marks uploaded by facultyID, optionally for one subject.
func (r *Repository) MarksByFaculty(ctx context.Context, facultyID string, subjectID int64) ([]MarksRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+marksColumns+`
		FROM marks m JOIN subject s ON s.subject_id = m.subject_id
		WHERE m.faculty_id = $1 AND ($2 = 0 OR m.subject_id = $2)
		ORDER BY m.subject_id, m.student_id
	`, facultyID, subjectID)
	if err != nil {
		return nil, err
	}
	return scanMarks(rows)
}

// MarksOf lists a student's marks by subject.
func (r *Repository) MarksOf(ctx context.Context, studentID string) ([]MarksRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+marksColumns+`
		FROM marks m JOIN subject s ON s.subject_id = m.subject_id
		WHERE m.student_id = $1
		ORDER BY m.subject_id
	`, studentID)
	if err != nil {
		return nil, err
	}
	return scanMarks(rows)
}
