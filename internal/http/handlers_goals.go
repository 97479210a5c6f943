package http

import (
	"net/http"
	"strconv"

	"momentum/internal/auth"
	"momentum/internal/cache"
	"momentum/internal/core"
	"momentum/internal/dashboard"
	"momentum/internal/middleware/trace"
)

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	var (
		goals []core.Goal
		err   error
	)
	if r.URL.Query().Get("active") == "true" {
		goals, err = s.services.Goals.Active(r.Context())
	} else {
		goals, err = s.services.Goals.List(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"goals": toGoals(goals)}).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	goal, err := s.services.Goals.Create(r.Context(), p.Get("title"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusCreated).Location("/api/goals/" + goal.ID).Body(toGoal(goal)).Write(w)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.services.Goals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toGoal(goal)).Write(w)
}

// handleUpdateGoal applies a title and/or status change.
func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if !p.Has("title") && !p.Has("status") {
		BadRequestError("nothing to update: expected title or status").WithRequestID(trace.RequestID(r)).Write(w)
		return
	}
	if p.Has("title") {
		if err := s.services.Goals.Rename(r.Context(), id, p.Get("title")); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if p.Has("status") {
		if err := s.services.Goals.SetStatus(r.Context(), id, p.Get("status")); err != nil {
			writeError(w, r, err)
			return
		}
	}
	s.afterGoalWrite(w, r, id)
}

func (s *Server) handleReplaceSubgoals(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	subgoals, err := p.Subgoals("subgoals")
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.services.Goals.ReplaceSubgoals(r.Context(), id, subgoals); err != nil {
		writeError(w, r, err)
		return
	}
	s.afterGoalWrite(w, r, id)
}

// afterGoalWrite invalidates cached views and responds with the stored goal.
func (s *Server) afterGoalWrite(w http.ResponseWriter, r *http.Request, id string) {
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	goal, err := s.services.Goals.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(toGoal(goal)).Write(w)
}

// handleDeleteGoal removes the goal. Its motivation logs stay and keep
// counting towards the score.
func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Goals.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMotivationView(w http.ResponseWriter, r *http.Request) {
	owner, err := auth.Require(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	win, days, err := s.window(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := cached(r.Context(), s.motivationCache, cache.Key(owner, "motivation", strconv.Itoa(days), dayStamp()), func() (dashboard.MotivationView, error) {
		return s.services.Motivation.View(r.Context(), win)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.services.Motivation.Logs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"logs": toLogs(logs)}).Write(w)
}

func (s *Server) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	score, err := p.Score("score")
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.services.Motivation.Log(r.Context(), p.Get("goalId"), score, p.Get("notes"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusCreated).Body(idJSON{ID: id}).Write(w)
}

func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Motivation.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	owner, _ := auth.CurrentUser(r.Context())
	s.invalidate(r.Context(), owner)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
