package ledger

import (
	"context"
	"database/sql"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"academics/internal/apperr"
	"academics/internal/metrics"
	"academics/internal/principal"
	"academics/internal/store"
)

const (
	maxStatusLen = 20
	minMarks     = 0
	maxMarks     = 100
)

// Service applies the write-once rules. Every batch is one transaction:
// either every row is accepted or nothing is written.
type Service struct {
	db      *store.DB
	repo    *Repository
	clock   abtime.AbstractTime
	loc     *time.Location
	metrics *metrics.Metrics
}

// NewService creates a ledger. loc decides what "today" means for
// attendance dates.
func NewService(db *store.DB, clock abtime.AbstractTime, loc *time.Location, m *metrics.Metrics) *Service {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, repo: NewRepository(db.Client), clock: clock, loc: loc, metrics: m}
}

// CreateSubject adds a subject with a unique name.
func (s *Service) CreateSubject(ctx context.Context, actor principal.Actor, name string) (Subject, error) {
	if !actor.Role.IsAdmin() {
		return Subject{}, apperr.New(apperr.Forbidden, "only admins can create subjects")
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return Subject{}, apperr.New(apperr.Validation, "subject name must be 1 to 100 characters").With("field", "subject_name")
	}
	var subj Subject
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if existing, err := repo.SubjectByName(ctx, name); err != nil {
			return err
		} else if existing != nil {
			return apperr.Newf(apperr.AlreadyExists, "subject %q already exists", existing.Name)
		}
		id, err := repo.InsertSubject(ctx, name)
		if err != nil {
			return err
		}
		subj = Subject{ID: id, Name: name}
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return Subject{}, apperr.Newf(apperr.AlreadyExists, "subject %q already exists", name)
		}
		return Subject{}, err
	}
	return subj, nil
}

// Subjects lists every subject.
func (s *Service) Subjects(ctx context.Context) ([]Subject, error) {
	return s.repo.Subjects(ctx)
}

// MarkAttendance records a batch for one subject and date. Re-submitting an
// identical status is a no-op; a different status for an existing key fails
// the whole batch with ImmutableConflict.
func (s *Service) MarkAttendance(ctx context.Context, actor principal.Actor, in AttendanceBatch) (WriteResult, error) {
	res, err := s.markAttendance(ctx, actor, in)
	s.recordWrite("attendance", err)
	return res, err
}

func (s *Service) markAttendance(ctx context.Context, actor principal.Actor, in AttendanceBatch) (WriteResult, error) {
	if err := s.checkFaculty(actor, in.FacultyID); err != nil {
		return WriteResult{}, err
	}
	date, err := s.parseDate(in.Date)
	if err != nil {
		return WriteResult{}, err
	}
	if date.After(s.today()) {
		return WriteResult{}, apperr.New(apperr.FutureDateRejected, "cannot mark attendance for a future date")
	}
	if len(in.Statuses) == 0 {
		return WriteResult{}, apperr.New(apperr.Validation, "statusMap is empty").With("field", "statusMap")
	}
	statuses := make(map[string]string, len(in.Statuses))
	for sid, status := range in.Statuses {
		status = strings.TrimSpace(status)
		if status == "" || utf8.RuneCountInString(status) > maxStatusLen {
			return WriteResult{}, apperr.Newf(apperr.Validation, "status for %s must be 1 to %d characters", sid, maxStatusLen).
				With("student_id", sid)
		}
		key := strings.TrimSpace(sid)
		if _, dup := statuses[key]; dup {
			return WriteResult{}, duplicateKey(key)
		}
		statuses[key] = status
	}

	var res WriteResult
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res = WriteResult{}
		repo := s.repo.WithTx(tx)
		if err := requireSubject(ctx, repo, in.SubjectID); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		for _, sid := range sortedKeys(statuses) {
			status := statuses[sid]
			existing, err := repo.Attendance(ctx, sid, in.SubjectID, date)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.Status != status {
					return apperr.Newf(apperr.ImmutableConflict, "attendance already marked for %s, updates not allowed", sid).
						With("student_id", sid)
				}
				res.Unchanged++
				continue
			}
			if err := requireStudent(ctx, repo, sid); err != nil {
				return err
			}
			if err := repo.InsertAttendance(ctx, AttendanceRecord{
				ID:        uuid.NewString(),
				StudentID: sid,
				FacultyID: actor.ID,
				SubjectID: in.SubjectID,
				Date:      date,
				Status:    status,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			res.Created++
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	log.Printf("attendance: %s marked subject %d on %s (%d new, %d unchanged)",
		actor.ID, in.SubjectID, date.Format(principal.DateLayout), res.Created, res.Unchanged)
	return res, nil
}

// AttendanceFor returns {student_id: status} for one subject and date.
func (s *Service) AttendanceFor(ctx context.Context, subjectID int64, date string) (map[string]string, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.AttendanceOn(ctx, subjectID, day)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(recs))
	for _, r := range recs {
		out[r.StudentID] = r.Status
	}
	return out, nil
}

// StudentAttendance returns a student's records with a per-subject summary.
// A record counts as attended when its status is "present".
func (s *Service) StudentAttendance(ctx context.Context, studentID string) (StudentAttendance, error) {
	recs, err := s.repo.AttendanceOf(ctx, studentID)
	if err != nil {
		return StudentAttendance{}, err
	}
	bySubject := map[int64]*SubjectAttendance{}
	var order []int64
	for _, r := range recs {
		sum, ok := bySubject[r.SubjectID]
		if !ok {
			sum = &SubjectAttendance{SubjectID: r.SubjectID, SubjectName: r.SubjectName}
			bySubject[r.SubjectID] = sum
			order = append(order, r.SubjectID)
		}
		sum.Total++
		if strings.EqualFold(r.Status, "present") {
			sum.Present++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := StudentAttendance{Records: recs, Subjects: make([]SubjectAttendance, 0, len(order))}
	for _, id := range order {
		sum := bySubject[id]
		sum.Percentage = round2(float64(sum.Present) / float64(sum.Total) * 100)
		out.Subjects = append(out.Subjects, *sum)
	}
	return out, nil
}

// UploadMarks records a batch for one subject. Values are bounded to 0..100
// regardless of max_marks. Re-uploading an identical value is a no-op; a
// different value for an existing key fails the batch with ImmutableConflict.
func (s *Service) UploadMarks(ctx context.Context, actor principal.Actor, in MarksBatch) (WriteResult, error) {
	res, err := s.uploadMarks(ctx, actor, in)
	s.recordWrite("marks", err)
	return res, err
}

func (s *Service) uploadMarks(ctx context.Context, actor principal.Actor, in MarksBatch) (WriteResult, error) {
	if err := s.checkFaculty(actor, in.FacultyID); err != nil {
		return WriteResult{}, err
	}
	if in.MaxMarks == 0 {
		in.MaxMarks = maxMarks
	}
	if in.MaxMarks < 0 {
		return WriteResult{}, apperr.New(apperr.Validation, "max_marks must be positive").With("field", "max_marks")
	}
	if len(in.Marks) == 0 {
		return WriteResult{}, apperr.New(apperr.Validation, "marksMap is empty").With("field", "marksMap")
	}
	marks := make(map[string]float64, len(in.Marks))
	for sid, v := range in.Marks {
		if err := checkRange(sid, v); err != nil {
			return WriteResult{}, err
		}
		key := strings.TrimSpace(sid)
		if _, dup := marks[key]; dup {
			return WriteResult{}, duplicateKey(key)
		}
		marks[key] = v
	}

	var res WriteResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res = WriteResult{}
		repo := s.repo.WithTx(tx)
		if err := requireSubject(ctx, repo, in.SubjectID); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		for _, sid := range sortedKeys(marks) {
			value := marks[sid]
			existing, err := repo.Marks(ctx, sid, in.SubjectID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.MarksObtained != value {
					return apperr.Newf(apperr.ImmutableConflict, "marks already entered for %s, updates not allowed", sid).
						With("student_id", sid)
				}
				res.Unchanged++
				continue
			}
			if err := requireStudent(ctx, repo, sid); err != nil {
				return err
			}
			if err := repo.InsertMarks(ctx, MarksRecord{
				ID:            uuid.NewString(),
				StudentID:     sid,
				FacultyID:     actor.ID,
				SubjectID:     in.SubjectID,
				MarksObtained: value,
				MaxMarks:      in.MaxMarks,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
			res.Created++
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	log.Printf("marks: %s uploaded subject %d (%d new, %d unchanged)", actor.ID, in.SubjectID, res.Created, res.Unchanged)
	return res, nil
}

// UpdateMarks is the sanctioned correction path. Only the original uploader
// may change a record, and the record must already exist.
func (s *Service) UpdateMarks(ctx context.Context, actor principal.Actor, studentID string, subjectID int64, value float64) (MarksRecord, error) {
	rec, err := s.updateMarks(ctx, actor, studentID, subjectID, value)
	s.recordWrite("marks_update", err)
	return rec, err
}

func (s *Service) updateMarks(ctx context.Context, actor principal.Actor, studentID string, subjectID int64, value float64) (MarksRecord, error) {
	if actor.Role != principal.RoleFaculty {
		return MarksRecord{}, apperr.New(apperr.Forbidden, "only faculty can update marks")
	}
	if err := checkRange(studentID, value); err != nil {
		return MarksRecord{}, err
	}
	var rec MarksRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.Marks(ctx, studentID, subjectID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.Newf(apperr.NotFound, "no marks recorded for %s in subject %d", studentID, subjectID)
		}
		if !strings.EqualFold(existing.FacultyID, actor.ID) {
			return apperr.New(apperr.OwnershipDenied, "only the faculty who uploaded these marks can update them")
		}
		if err := repo.SetMarks(ctx, existing.ID, value); err != nil {
			return err
		}
		existing.MarksObtained = value
		rec = *existing
		return nil
	})
	if err != nil {
		return MarksRecord{}, err
	}
	log.Printf("marks: %s corrected %s subject %d to %.2f", actor.ID, studentID, subjectID, value)
	return rec, nil
}

// MarksByFaculty lists marks uploaded by the caller. subjectID 0 means all.
func (s *Service) MarksByFaculty(ctx context.Context, facultyID string, subjectID int64) ([]MarksRecord, error) {
	return s.repo.MarksByFaculty(ctx, facultyID, subjectID)
}

// StudentResults returns a student's marks with per-subject and overall
// percentages.
func (s *Service) StudentResults(ctx context.Context, studentID string) (StudentResults, error) {
	recs, err := s.repo.MarksOf(ctx, studentID)
	if err != nil {
		return StudentResults{}, err
	}
	out := StudentResults{Subjects: make([]SubjectResult, 0, len(recs))}
	for _, r := range recs {
		out.Subjects = append(out.Subjects, SubjectResult{MarksRecord: r, Percentage: r.Percentage()})
		out.TotalObtained += r.MarksObtained
		out.TotalMax += r.MaxMarks
	}
	if out.TotalMax > 0 {
		out.OverallPercentage = round2(out.TotalObtained / out.TotalMax * 100)
	}
	return out, nil
}

func (s *Service) checkFaculty(actor principal.Actor, claimed string) error {
	if actor.Role != principal.RoleFaculty {
		return apperr.New(apperr.Forbidden, "only faculty can write records")
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && !strings.EqualFold(claimed, actor.ID) {
		return apperr.New(apperr.Forbidden, "faculty_id does not match the signed-in faculty")
	}
	return nil
}

func (s *Service) parseDate(v string) (time.Time, error) {
	d, err := time.Parse(principal.DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, apperr.New(apperr.Validation, "invalid date format, expected YYYY-MM-DD").With("field", "date")
	}
	return d, nil
}

// today is the current calendar date in the configured location, expressed
// as midnight UTC like every stored date.
func (s *Service) today() time.Time {
	y, m, d := s.clock.Now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) recordWrite(ledger string, err error) {
	if err != nil {
		s.metrics.LedgerWrite(ledger, string(apperr.CodeOf(err)))
		return
	}
	s.metrics.LedgerWrite(ledger, "ok")
}

func checkRange(studentID string, v float64) error {
	if v < minMarks || v > maxMarks {
		return apperr.Newf(apperr.OutOfRange, "marks must be between %d and %d (student %s)", minMarks, maxMarks, studentID).
			With("student_id", studentID)
	}
	return nil
}

func duplicateKey(studentID string) error {
	return apperr.Newf(apperr.Validation, "student %s appears more than once in the batch", studentID).
		With("student_id", studentID)
}

func requireSubject(ctx context.Context, repo *Repository, id int64) error {
	subj, err := repo.Subject(ctx, id)
	if err != nil {
		return err
	}
	if subj == nil {
		return apperr.Newf(apperr.NotFound, "subject %d not found", id)
	}
	return nil
}

func requireStudent(ctx context.Context, repo *Repository, id string) error {
	ok, err := repo.StudentExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.NotFound, "student %s not found", id).With("student_id", id)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
