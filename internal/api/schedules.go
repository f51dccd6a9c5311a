package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"televet/internal/export"
	"televet/internal/model"
	"televet/internal/scheduling"
	"televet/internal/settings"
	"televet/internal/slots"
)

type slotView struct {
	Start         string           `json:"start"`
	End           string           `json:"end"`
	Display       string           `json:"display"`
	Status        model.SlotStatus `json:"status"`
	ExpiryTime    int64            `json:"expiry_time,omitempty"`
	AppointmentID string           `json:"appointment_id,omitempty"`
	OwnerName     string           `json:"owner_name,omitempty"`
	PetName       string           `json:"pet_name,omitempty"`
}

type dayView struct {
	Date    string     `json:"date"`
	Display string     `json:"display"`
	Blocked bool       `json:"blocked"`
	Slots   []slotView `json:"slots"`
}

func newDayView(day model.DaySchedule, now time.Time) dayView {
	v := dayView{
		Date:    day.Date,
		Display: slots.FormatDate(day.Date),
		Blocked: day.Blocked,
		Slots:   make([]slotView, 0, len(day.Slots)),
	}
	for _, slot := range day.Slots {
		v.Slots = append(v.Slots, slotView{
			Start:         slot.Start,
			End:           slot.End,
			Display:       slots.FormatRange(slot.Start, slot.End),
			Status:        slots.Classify(slot, now),
			ExpiryTime:    slot.ExpiryTime,
			AppointmentID: slot.AppointmentID,
			OwnerName:     slot.OwnerName,
			PetName:       slot.PetName,
		})
	}
	return v
}

type editDayRequest struct {
	Slots []model.TemplateSlot `json:"slots"`
}

type editDayResponse struct {
	Day     dayView `json:"day"`
	Dropped int     `json:"dropped"`
	Removed bool    `json:"removed"`
}

type blockRequest struct {
	Dates []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02"`
}

type settingsRequest struct {
	Value float64 `json:"value" validate:"required"`
	Unit  string  `json:"unit"`
}

type settingsResponse struct {
	MinAdvanceBookingMinutes int    `json:"min_advance_booking_minutes"`
	Display                  string `json:"display"`
}

// parseFilter reads ?filter=all|today|date|range|week with date, from, to
// and week=current|next.
func (s *Server) parseFilter(r *http.Request) (scheduling.Filter, error) {
	q := r.URL.Query()
	loc := s.opts.Now().Location()
	switch mode := q.Get("filter"); mode {
	case "", string(scheduling.FilterAll):
		return scheduling.Filter{Mode: scheduling.FilterAll}, nil
	case string(scheduling.FilterToday):
		return scheduling.Filter{Mode: scheduling.FilterToday}, nil
	case string(scheduling.FilterDate):
		date := q.Get("date")
		if _, err := slots.ParseDateKey(date, loc); err != nil {
			return scheduling.Filter{}, err
		}
		return scheduling.Filter{Mode: scheduling.FilterDate, Date: date}, nil
	case string(scheduling.FilterRange):
		from, to := q.Get("from"), q.Get("to")
		if _, err := slots.DatesInRange(from, to, loc); err != nil {
			return scheduling.Filter{}, err
		}
		return scheduling.Filter{Mode: scheduling.FilterRange, From: from, To: to}, nil
	case "week":
		weeks := 0
		switch q.Get("week") {
		case "", "current":
		case "next":
			weeks = 1
		default:
			return scheduling.Filter{}, fmt.Errorf("%w: week must be current or next", errBadFilter)
		}
		from, to := slots.WeekRange(s.opts.Now(), weeks)
		return scheduling.Filter{Mode: scheduling.FilterRange, From: from, To: to}, nil
	default:
		return scheduling.Filter{}, fmt.Errorf("%w: unknown filter %q", errBadFilter, mode)
	}
}

// GET /vets/{vetID}/schedules
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	f, err := s.parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	days, err := sess.Schedules(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.opts.Now()
	views := make([]dayView, 0, len(days))
	for _, day := range days {
		views = append(views, newDayView(day, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": views})
}

// GET /vets/{vetID}/schedules/export
func (s *Server) exportSchedules(w http.ResponseWriter, r *http.Request) {
	vetID := chi.URLParam(r, "vetID")
	var buf bytes.Buffer
	if err := s.svc.Export.WriteSchedule(r.Context(), vetID, &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "schedule-"+vetID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// PUT /vets/{vetID}/schedules/{date}
func (s *Server) editDay(w http.ResponseWriter, r *http.Request) {
	var req editDayRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.EditDay(r.Context(), chi.URLParam(r, "date"), req.Slots)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, editDayResponse{
		Day:     newDayView(res.Day, s.opts.Now()),
		Dropped: res.Dropped,
		Removed: res.Removed,
	})
}

// GET /vets/{vetID}/blocked-dates
func (s *Server) listBlockedDates(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	dates, err := sess.BlockedDates(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// POST /vets/{vetID}/blocked-dates
func (s *Server) blockDates(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.BlockDates(r.Context(), req.Dates); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked": req.Dates})
}

// DELETE /vets/{vetID}/blocked-dates/{date}
func (s *Server) unblockDate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.UnblockDate(r.Context(), chi.URLParam(r, "date")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /vets/{vetID}/maintenance/sweep
func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := sess.Sweep(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

// POST /vets/{vetID}/maintenance/purge
func (s *Server) purge(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	n, err := sess.PurgeExpired(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

// DELETE /vets/{vetID}/session
func (s *Server) releaseSession(w http.ResponseWriter, r *http.Request) {
	s.svc.Sessions.Release(chi.URLParam(r, "vetID"))
	w.WriteHeader(http.StatusNoContent)
}

// GET /vets/{vetID}/settings
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Settings.Get(r.Context(), chi.URLParam(r, "vetID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(st))
}

// PUT /vets/{vetID}/settings
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	minutes, err := settings.ParseAdvance(req.Value, req.Unit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.svc.Settings.Update(r.Context(), chi.URLParam(r, "vetID"), minutes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(st))
}

func newSettingsResponse(st model.VetSchedulingSettings) settingsResponse {
	return settingsResponse{
		MinAdvanceBookingMinutes: st.MinAdvance(),
		Display:                  slots.FormatMinutes(st.MinAdvance()),
	}
}
