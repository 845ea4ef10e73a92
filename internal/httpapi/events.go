package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campusevents/internal/actionlog"
	"campusevents/internal/auth"
	"campusevents/internal/domain"
	"campusevents/internal/lifecycle"
)

type eventRequest struct {
	Title   string         `json:"title" binding:"required"`
	Windows domain.Windows `json:"windows"`
	Shape   domain.Shape   `json:"shape"`
}

type eventResponse struct {
	Event    domain.Event               `json:"event"`
	Sessions []domain.AttendanceSession `json:"sessions,omitempty"`
	Triggers []domain.Trigger           `json:"triggers"`
}

func (s *Server) respondEvent(c *gin.Context, status int, evt domain.Event, sessions []domain.AttendanceSession) {
	trigs := s.deps.Scheduler.Pending(evt.ID)
	if trigs == nil {
		trigs = []domain.Trigger{}
	}
	c.JSON(status, eventResponse{Event: evt, Sessions: sessions, Triggers: trigs})
}

func (s *Server) createEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	if err := lifecycle.ValidateWindows(req.Windows); err != nil {
		writeError(c, err)
		return
	}
	now := s.deps.Clock.Now()
	evt := domain.Event{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(req.Title),
		OrganizerID:   claims.Subject,
		ApprovalState: domain.ApprovalPending,
		State:         domain.InitialState(),
		Windows:       req.Windows,
		Shape:         req.Shape,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ctx := c.Request.Context()
	evt, sessions, err := s.deps.Attendance.ResolveStrategy(ctx, evt)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.deps.Scheduler.OnEventCreated(ctx, evt); err != nil {
		writeError(c, err)
		return
	}
	s.respondEvent(c, http.StatusCreated, evt, sessions)
}

func (s *Server) getEvent(c *gin.Context) {
	evt, err := s.deps.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, domain.Persistence("get event", err))
		return
	}
	s.respondEvent(c, http.StatusOK, evt, nil)
}

// loadOwned fetches the event and checks the caller may manage it.
func (s *Server) loadOwned(c *gin.Context) (domain.Event, bool) {
	evt, err := s.deps.Events.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, domain.Persistence("get event", err))
		return domain.Event{}, false
	}
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role != auth.RoleAdmin && claims.Subject != evt.OrganizerID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not the organizer of this event"})
		return domain.Event{}, false
	}
	return evt, true
}

func (s *Server) updateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	current, ok := s.loadOwned(c)
	if !ok {
		return
	}
	if err := lifecycle.ValidateWindows(req.Windows); err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	now := s.deps.Clock.Now()
	evt, sessions, err := s.deps.Attendance.Update(ctx, current.ID, func(evt *domain.Event) error {
		evt.Title = strings.TrimSpace(req.Title)
		evt.Windows = req.Windows
		evt.Shape = req.Shape
		evt.UpdatedAt = now
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.deps.Scheduler.OnEventUpdated(ctx, evt); err != nil {
		writeError(c, err)
		return
	}
	s.respondEvent(c, http.StatusOK, evt, sessions)
}

func (s *Server) deleteEvent(c *gin.Context) {
	evt, ok := s.loadOwned(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.deps.Events.Delete(ctx, evt.ID); err != nil {
		writeError(c, domain.Persistence("delete event", err))
		return
	}
	s.deps.Scheduler.OnEventDeclinedOrDeleted(ctx, evt.ID)
	c.Status(http.StatusNoContent)
}

func (s *Server) approveEvent(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.deps.Clock.Now()
	var already bool
	evt, err := domain.MutateEvent(ctx, s.deps.Events, c.Param("id"), func(evt *domain.Event) (bool, error) {
		already = evt.Approved()
		if already {
			return false, nil
		}
		if err := lifecycle.ValidateWindows(evt.Windows); err != nil {
			return false, err
		}
		evt.ApprovalState = domain.ApprovalApproved
		evt.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		writeError(c, domain.Persistence("approve event", err))
		return
	}
	if already {
		s.respondEvent(c, http.StatusOK, evt, nil)
		return
	}
	if err := s.deps.Scheduler.OnEventApproved(ctx, evt); err != nil {
		writeError(c, err)
		return
	}
	s.respondEvent(c, http.StatusOK, evt, nil)
}

func (s *Server) declineEvent(c *gin.Context) {
	ctx := c.Request.Context()
	now := s.deps.Clock.Now()
	evt, err := domain.MutateEvent(ctx, s.deps.Events, c.Param("id"), func(evt *domain.Event) (bool, error) {
		if evt.ApprovalState == domain.ApprovalDeclined {
			return false, nil
		}
		evt.ApprovalState = domain.ApprovalDeclined
		evt.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		writeError(c, domain.Persistence("decline event", err))
		return
	}
	s.deps.Scheduler.OnEventDeclinedOrDeleted(ctx, evt.ID)
	s.respondEvent(c, http.StatusOK, evt, nil)
}

func (s *Server) cancelEvent(c *gin.Context) {
	evt, ok := s.loadOwned(c)
	if !ok {
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	evt, err := s.deps.Scheduler.Cancel(c.Request.Context(), evt.ID, claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	s.respondEvent(c, http.StatusOK, evt, nil)
}

func (s *Server) pendingTriggers(c *gin.Context) {
	evt, ok := s.loadOwned(c)
	if !ok {
		return
	}
	trigs := s.deps.Scheduler.Pending(evt.ID)
	if trigs == nil {
		trigs = []domain.Trigger{}
	}
	c.JSON(http.StatusOK, gin.H{"event_id": evt.ID, "triggers": trigs})
}

func (s *Server) actionHistory(c *gin.Context) {
	evt, ok := s.loadOwned(c)
	if !ok {
		return
	}
	entries, err := s.deps.Actions.List(c.Request.Context(), evt.ID)
	if err != nil {
		writeError(c, domain.Persistence("list action log", err))
		return
	}
	if entries == nil {
		entries = []actionlog.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"event_id": evt.ID, "actions": entries})
}

// at reads the optional ?at= RFC 3339 instant, defaulting to now.
func (s *Server) at(c *gin.Context) (time.Time, bool) {
	raw := c.Query("at")
	if raw == "" {
		return s.deps.Clock.Now(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(c, domain.Invalid("at", "must be an RFC 3339 timestamp"))
		return time.Time{}, false
	}
	return t, true
}
