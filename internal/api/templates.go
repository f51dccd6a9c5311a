package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"televet/internal/model"
	"televet/internal/scheduling"
)

type templateRequest struct {
	Name  string                                 `json:"name"`
	Type  model.TemplateType                     `json:"type" validate:"required,oneof=week day"`
	Days  map[model.Weekday][]model.TemplateSlot `json:"days"`
	Slots []model.TemplateSlot                   `json:"slots"`
}

func (t templateRequest) template() model.AvailabilityTemplate {
	return model.AvailabilityTemplate{Name: t.Name, Type: t.Type, Days: t.Days, Slots: t.Slots}
}

type copyDayRequest struct {
	From model.Weekday `json:"from" validate:"required"`
	To   model.Weekday `json:"to" validate:"required"`
}

type copyFromRequest struct {
	SourceID string        `json:"source_id" validate:"required"`
	Day      model.Weekday `json:"day"`
}

type rangeRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type applyRequest struct {
	rangeRequest
	ReplaceDates []string `json:"replace_dates" validate:"dive,datetime=2006-01-02"`
	SkipDates    []string `json:"skip_dates" validate:"dive,datetime=2006-01-02"`
}

type applyResponse struct {
	scheduling.ApplyReport
	AppliedDates []string `json:"applied_dates"`
}

// GET /vets/{vetID}/templates
func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Templates.List(r.Context(), chi.URLParam(r, "vetID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.AvailabilityTemplate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": list})
}

// POST /vets/{vetID}/templates
func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.svc.Templates.Create(r.Context(), chi.URLParam(r, "vetID"), req.template())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GET /vets/{vetID}/templates/{templateID}
func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.svc.Templates.Get(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// PUT /vets/{vetID}/templates/{templateID}
func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.svc.Templates.Update(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID"), req.template())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DELETE /vets/{vetID}/templates/{templateID}
func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Templates.Delete(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /vets/{vetID}/templates/{templateID}/copy-day
func (s *Server) copyTemplateDay(w http.ResponseWriter, r *http.Request) {
	var req copyDayRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tpl, err := s.svc.Templates.CopyDay(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID"), req.From, req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// POST /vets/{vetID}/templates/{templateID}/copy-from
func (s *Server) copyTemplateFrom(w http.ResponseWriter, r *http.Request) {
	var req copyFromRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tpl, err := s.svc.Templates.CopyFrom(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID"), req.SourceID, req.Day)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// POST /vets/{vetID}/templates/{templateID}/analyze
func (s *Server) analyzeTemplate(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tpl, err := s.svc.Templates.Get(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	analysis, err := sess.Analyze(r.Context(), tpl, req.StartDate, req.EndDate)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// POST /vets/{vetID}/templates/{templateID}/apply
func (s *Server) applyTemplate(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	tpl, err := s.svc.Templates.Get(r.Context(), chi.URLParam(r, "vetID"), chi.URLParam(r, "templateID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	report, err := sess.ApplyTemplate(r.Context(), tpl, req.StartDate, req.EndDate, scheduling.Resolution{
		ReplaceDates: req.ReplaceDates,
		SkipDates:    req.SkipDates,
	})
	if err != nil {
		s.failWith(w, r, err, report.Results)
		return
	}
	applied := report.AppliedDates()
	if applied == nil {
		applied = []string{}
	}
	writeJSON(w, http.StatusOK, applyResponse{ApplyReport: report, AppliedDates: applied})
}
