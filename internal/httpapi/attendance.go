package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusevents/internal/auth"
	"campusevents/internal/domain"
)

func (s *Server) sessions(c *gin.Context) {
	now, ok := s.at(c)
	if !ok {
		return
	}
	sessions, err := s.deps.Attendance.Sessions(c.Request.Context(), c.Param("id"), now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": nonNil(sessions)})
}

func (s *Server) activeSessions(c *gin.Context) {
	now, ok := s.at(c)
	if !ok {
		return
	}
	sessions, err := s.deps.Attendance.ActiveSessions(c.Request.Context(), c.Param("id"), now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": nonNil(sessions)})
}

func (s *Server) mark(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	rec, err := s.deps.Attendance.Mark(c.Request.Context(), claims.Subject, c.Param("id"), req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) myRecord(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	rec, err := s.deps.Attendance.Record(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) records(c *gin.Context) {
	evt, ok := s.loadOwned(c)
	if !ok {
		return
	}
	recs, err := s.deps.Attendance.Records(c.Request.Context(), evt.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []domain.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (s *Server) cancelRegistration(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	if err := s.deps.Attendance.CancelRegistration(c.Request.Context(), claims.Subject, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) finalize(c *gin.Context) {
	evt, ok := s.loadOwned(c)
	if !ok {
		return
	}
	rec, err := s.deps.Attendance.Finalize(c.Request.Context(), c.Param("student"), evt.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func nonNil(sessions []domain.AttendanceSession) []domain.AttendanceSession {
	if sessions == nil {
		return []domain.AttendanceSession{}
	}
	return sessions
}
