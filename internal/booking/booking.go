// Package booking is the pet owner side of scheduling: it lists bookable
// slots, rechecks one before booking and records appointments.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"televet/internal/metrics"
	"televet/internal/model"
	"televet/internal/repository"
	"televet/internal/slots"
)

var (
	ErrInvalidRequest  = errors.New("Please provide pet, vet, and reason.")
	ErrSlotUnavailable = errors.New("the selected time slot is no longer available")
)

const defaultOwnerName = "Pet Owner"

// SettingsReader supplies a vet's scheduling settings.
type SettingsReader interface {
	Get(ctx context.Context, vetID string) (model.VetSchedulingSettings, error)
}

// Slot is one bookable slot as shown to a pet owner.
type Slot struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Display string `json:"display"`
}

// Availability lists the dates with at least one bookable slot, ascending,
// and the slots of each date ordered by start.
type Availability struct {
	Dates       []string          `json:"dates"`
	SlotsByDate map[string][]Slot `json:"slots_by_date"`
}

type Service struct {
	schedules    *repository.ScheduleRepository
	appointments *repository.AppointmentRepository
	settings     SettingsReader
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewService(
	schedules *repository.ScheduleRepository,
	appointments *repository.AppointmentRepository,
	settings SettingsReader,
	now func() time.Time,
	logger *zerolog.Logger,
) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		schedules:    schedules,
		appointments: appointments,
		settings:     settings,
		now:          now,
		logger:       logger,
	}
}

// BookableSlots returns what a pet owner may book with the vet right now.
func (s *Service) BookableSlots(ctx context.Context, vetID string) (Availability, error) {
	days, err := s.schedules.List(ctx, vetID)
	if err != nil {
		return Availability{}, err
	}
	settings, err := s.settings.Get(ctx, vetID)
	if err != nil {
		return Availability{}, err
	}
	minAdvance := settings.MinAdvance()
	now := s.now()
	today := slots.DateKey(now)

	out := Availability{Dates: []string{}, SlotsByDate: map[string][]Slot{}}
	for _, day := range days {
		if day.Blocked || day.Date < today {
			continue
		}
		var list []Slot
		for _, slot := range day.Slots {
			if !openSlot(slot, day.Date, minAdvance, now) {
				continue
			}
			list = append(list, Slot{Start: slot.Start, End: slot.End, Display: slots.FormatRange(slot.Start, slot.End)})
		}
		if len(list) == 0 {
			continue
		}
		out.Dates = append(out.Dates, day.Date)
		out.SlotsByDate[day.Date] = list
	}
	return out, nil
}

// CheckAvailability re-reads the date and reports whether the slot starting
// at start is still available and unexpired. It reserves nothing.
func (s *Service) CheckAvailability(ctx context.Context, vetID, date, start string) (bool, error) {
	_, _, ok, err := s.findSlot(ctx, vetID, date, start)
	return ok, err
}

// findSlot re-reads the date and judges the slot under the vet's current
// policy, so a slot stored without an expiry is held to the same cutoff as
// the listing.
func (s *Service) findSlot(ctx context.Context, vetID, date, start string) (model.ScheduleSlot, int, bool, error) {
	settings, err := s.settings.Get(ctx, vetID)
	if err != nil {
		return model.ScheduleSlot{}, 0, false, err
	}
	minAdvance := settings.MinAdvance()

	day, exists, err := s.schedules.Get(ctx, vetID, date)
	if err != nil || !exists || day.Blocked {
		return model.ScheduleSlot{}, minAdvance, false, err
	}
	i := day.FindSlot(start)
	if i < 0 {
		return model.ScheduleSlot{}, minAdvance, false, nil
	}
	slot := day.Slots[i]
	return slot, minAdvance, openSlot(slot, date, minAdvance, s.now()), nil
}

// openSlot stamps a missing expiry before judging the slot.
func openSlot(slot model.ScheduleSlot, date string, minAdvance int, now time.Time) bool {
	slot = slots.EnsureExpiry(slot, date, minAdvance, now.Location())
	return bookable(slot, date, minAdvance, now)
}

func bookable(slot model.ScheduleSlot, date string, minAdvance int, now time.Time) bool {
	return slot.Status == model.StatusAvailable &&
		date >= slots.DateKey(now) &&
		!slots.IsExpired(slot, now) &&
		!slots.IsPastCutoff(date, slot.Start, minAdvance, now)
}

// Request is a pet owner's booking of one slot.
type Request struct {
	OwnerID    string
	OwnerEmail string
	OwnerName  string
	Title      string
	PetID      string
	PetName    string
	PetSpecies string
	VetID      string
	VetName    string
	ClinicName string
	Date       string
	Start      string
	Reason     string
}

func (r *Request) normalize() error {
	r.PetName = strings.TrimSpace(r.PetName)
	r.VetName = strings.TrimSpace(r.VetName)
	r.Reason = strings.TrimSpace(r.Reason)
	r.OwnerName = strings.TrimSpace(r.OwnerName)
	if r.OwnerName == "" {
		r.OwnerName = defaultOwnerName
	}
	if r.PetID == "" || r.PetName == "" || r.VetID == "" || r.VetName == "" || r.Reason == "" {
		return ErrInvalidRequest
	}
	if r.OwnerID == "" || r.Date == "" || r.Start == "" {
		return fmt.Errorf("%w: owner, date and slot are required", ErrInvalidRequest)
	}
	return nil
}

// Book records a pending appointment and marks its slot booked. The slot
// is rechecked first; the flip to booked only happens if the slot is still
// available inside the date's atomic update, otherwise the appointment is
// withdrawn and ErrSlotUnavailable is returned.
func (s *Service) Book(ctx context.Context, req Request) (*model.Appointment, error) {
	if err := req.normalize(); err != nil {
		metrics.IncBooking("invalid")
		return nil, err
	}

	slot, minAdvance, ok, err := s.findSlot(ctx, req.VetID, req.Date, req.Start)
	if err != nil {
		metrics.IncBooking("error")
		return nil, err
	}
	if !ok {
		metrics.IncBooking("unavailable")
		return nil, ErrSlotUnavailable
	}

	now := s.now()
	appt := model.Appointment{
		OwnerID:     req.OwnerID,
		OwnerEmail:  req.OwnerEmail,
		OwnerName:   req.OwnerName,
		Title:       strings.TrimSpace(req.Title),
		PetID:       req.PetID,
		PetName:     req.PetName,
		PetSpecies:  strings.TrimSpace(req.PetSpecies),
		VetID:       req.VetID,
		VetName:     req.VetName,
		ClinicName:  strings.TrimSpace(req.ClinicName),
		Date:        req.Date,
		SlotStart:   slot.Start,
		SlotEnd:     slot.End,
		TimeDisplay: slots.FormatRange(slot.Start, slot.End),
		Reason:      req.Reason,
		Status:      model.AppointmentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.appointments.Create(ctx, appt)
	if err != nil {
		metrics.IncBooking("error")
		return nil, err
	}
	appt.ID = id

	lost := false
	err = s.schedules.Update(ctx, req.VetID, req.Date, func(day *model.DaySchedule, exists bool) (bool, error) {
		i := day.FindSlot(req.Start)
		if !exists || day.Blocked || i < 0 || !openSlot(day.Slots[i], req.Date, minAdvance, s.now()) {
			lost = true
			return false, ErrSlotUnavailable
		}
		day.Slots[i].Status = model.StatusBooked
		day.Slots[i].AppointmentID = id
		day.Slots[i].OwnerID = req.OwnerID
		day.Slots[i].OwnerName = req.OwnerName
		day.Slots[i].PetName = req.PetName
		return false, nil
	})
	if err != nil {
		if derr := s.appointments.Delete(ctx, id); derr != nil {
			s.logger.Error().Err(derr).Str("appointment_id", id).Msg("failed to withdraw appointment")
		}
		if lost {
			metrics.IncBooking("unavailable")
			s.logger.Warn().Str("vet_id", req.VetID).Str("date", req.Date).Str("start", req.Start).Msg("slot taken before booking completed")
			return nil, ErrSlotUnavailable
		}
		metrics.IncBooking("error")
		return nil, err
	}

	metrics.IncBooking("booked")
	s.logger.Info().Str("appointment_id", id).Str("vet_id", req.VetID).Str("owner_id", req.OwnerID).
		Str("date", req.Date).Str("start", req.Start).Msg("appointment booked")
	return &appt, nil
}

// Appointments lists an owner's appointments, newest first.
func (s *Service) Appointments(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	return s.appointments.ListByOwner(ctx, ownerID)
}

// Upcoming keeps the owner's appointments that are still ahead.
func (s *Service) Upcoming(ctx context.Context, ownerID string) ([]model.Appointment, error) {
	all, err := s.Appointments(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	today := slots.DateKey(s.now())
	out := make([]model.Appointment, 0, len(all))
	for i := range all {
		if all[i].IsUpcoming(today) {
			out = append(out, all[i])
		}
	}
	return out, nil
}
