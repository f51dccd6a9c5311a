package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"televet/internal/booking"
	"televet/internal/model"
)

type bookRequest struct {
	OwnerID    string `json:"owner_id" validate:"required"`
	OwnerEmail string `json:"owner_email" validate:"omitempty,email"`
	OwnerName  string `json:"owner_name"`
	Title      string `json:"title"`
	PetID      string `json:"pet_id"`
	PetName    string `json:"pet_name"`
	PetSpecies string `json:"pet_species"`
	VetID      string `json:"vet_id"`
	VetName    string `json:"vet_name"`
	ClinicName string `json:"clinic_name"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Start      string `json:"start" validate:"required"`
	Reason     string `json:"reason"`
}

// GET /vets/{vetID}/bookable-slots
func (s *Server) bookableSlots(w http.ResponseWriter, r *http.Request) {
	avail, err := s.svc.Booking.BookableSlots(r.Context(), chi.URLParam(r, "vetID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// GET /vets/{vetID}/availability?date=YYYY-MM-DD&start=HH:MM
func (s *Server) checkAvailability(w http.ResponseWriter, r *http.Request) {
	date, start := r.URL.Query().Get("date"), r.URL.Query().Get("start")
	if date == "" || start == "" {
		writeError(w, http.StatusBadRequest, "date and start are required")
		return
	}
	ok, err := s.svc.Booking.CheckAvailability(r.Context(), chi.URLParam(r, "vetID"), date, start)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "start": start, "available": ok})
}

// POST /appointments
func (s *Server) book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	appt, err := s.svc.Booking.Book(r.Context(), booking.Request{
		OwnerID:    req.OwnerID,
		OwnerEmail: req.OwnerEmail,
		OwnerName:  req.OwnerName,
		Title:      req.Title,
		PetID:      req.PetID,
		PetName:    req.PetName,
		PetSpecies: req.PetSpecies,
		VetID:      req.VetID,
		VetName:    req.VetName,
		ClinicName: req.ClinicName,
		Date:       req.Date,
		Start:      req.Start,
		Reason:     req.Reason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// GET /owners/{ownerID}/appointments?upcoming=true
func (s *Server) ownerAppointments(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	var (
		list []model.Appointment
		err  error
	)
	if r.URL.Query().Get("upcoming") == "true" {
		list, err = s.svc.Booking.Upcoming(r.Context(), ownerID)
	} else {
		list, err = s.svc.Booking.Appointments(r.Context(), ownerID)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}
