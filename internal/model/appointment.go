package model

import (
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Appointment is a pet owner's booking of one schedule slot.
type Appointment struct {
	ID          string            `json:"id,omitempty"`
	OwnerID     string            `json:"ownerId"`
	OwnerEmail  string            `json:"ownerEmail,omitempty"`
	OwnerName   string            `json:"ownerName"`
	Title       string            `json:"title,omitempty"`
	PetID       string            `json:"petId"`
	PetName     string            `json:"petName"`
	PetSpecies  string            `json:"petSpecies,omitempty"`
	VetID       string            `json:"vetId"`
	VetName     string            `json:"vetName"`
	ClinicName  string            `json:"clinicName,omitempty"`
	Date        string            `json:"date"`
	SlotStart   string            `json:"slotStart"`
	SlotEnd     string            `json:"slotEnd,omitempty"`
	TimeDisplay string            `json:"timeDisplay,omitempty"`
	Reason      string            `json:"reason"`
	Status      AppointmentStatus `json:"status"`
	Paid        bool              `json:"paid,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// IsUpcoming reports whether the appointment is still active on or after
// the given date key.
func (a *Appointment) IsUpcoming(today string) bool {
	status := AppointmentStatus(strings.ToLower(string(a.Status)))
	if status == "" {
		status = AppointmentPending
	}
	if status == AppointmentCancelled || status == AppointmentCompleted {
		return false
	}
	return a.Date == "" || a.Date >= today
}
