package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"academics/internal/apperr"
	"academics/internal/ledger"
)

func (a *API) markAttendance(c *gin.Context) {
	var req ledger.AttendanceBatch
	if !bind(c, &req) {
		return
	}
	res, err := a.Ledger.MarkAttendance(c.Request.Context(), caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"created": res.Created, "unchanged": res.Unchanged})
}

func (a *API) attendanceFor(c *gin.Context) {
	subjectID, err := int64Param(c.Query("subject_id"), "subject_id", true)
	if err != nil {
		fail(c, err)
		return
	}
	if c.Query("date") == "" {
		fail(c, apperr.New(apperr.Validation, "date is required").With("field", "date"))
		return
	}
	statuses, err := a.Ledger.AttendanceFor(c.Request.Context(), subjectID, c.Query("date"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"attendance": statuses})
}

func (a *API) uploadMarks(c *gin.Context) {
	var req ledger.MarksBatch
	if !bind(c, &req) {
		return
	}
	res, err := a.Ledger.UploadMarks(c.Request.Context(), caller(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"created": res.Created, "unchanged": res.Unchanged})
}

func (a *API) updateMarks(c *gin.Context) {
	subjectID, err := int64Param(c.Param("subject_id"), "subject_id", true)
	if err != nil {
		fail(c, err)
		return
	}
	var req struct {
		MarksObtained *float64 `json:"marks_obtained" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	rec, err := a.Ledger.UpdateMarks(c.Request.Context(), caller(c), c.Param("student_id"), subjectID, *req.MarksObtained)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"record": rec})
}

func (a *API) facultyResults(c *gin.Context) {
	subjectID, err := int64Param(c.Query("subject_id"), "subject_id", false)
	if err != nil {
		fail(c, err)
		return
	}
	recs, err := a.Ledger.MarksByFaculty(c.Request.Context(), caller(c).ID, subjectID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"results": recs})
}

func (a *API) studentResults(c *gin.Context) {
	res, err := a.Ledger.StudentResults(c.Request.Context(), caller(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"results": res})
}

func (a *API) studentAttendance(c *gin.Context) {
	view, err := a.Ledger.StudentAttendance(c.Request.Context(), caller(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"attendance": view})
}
