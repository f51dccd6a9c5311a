// Package repository maps the scheduling model onto document-store
// collections:
//
//	users/{vetID}/template/{templateID}   availability templates
//	users/{vetID}/schedules/{YYYY-MM-DD}  day schedules
//	users/{vetID}/vetSettings/scheduling  scheduling settings
//	appointments/{appointmentID}          pet owner appointments
package repository

import "fmt"

const (
	AppointmentsCollection = "appointments"
	settingsKey            = "scheduling"
)

// TemplatesPath is the template collection of a vet.
func TemplatesPath(vetID string) string {
	return fmt.Sprintf("users/%s/template", vetID)
}

// SchedulesPath is the day-schedule collection of a vet.
func SchedulesPath(vetID string) string {
	return fmt.Sprintf("users/%s/schedules", vetID)
}

// SettingsPath is the collection holding the vet's settings document.
func SettingsPath(vetID string) string {
	return fmt.Sprintf("users/%s/vetSettings", vetID)
}
