// Package export renders a vet's schedule as an XLSX workbook.
package export

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"televet/internal/model"
	"televet/internal/slots"
)

// ContentType is the media type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var slotColumns = []string{"Date", "Day", "Start", "End", "Time", "Status", "Pet", "Owner", "Appointment"}

// ScheduleSource lists a vet's schedules ordered by date.
type ScheduleSource interface {
	List(ctx context.Context, vetID string) ([]model.DaySchedule, error)
}

type Exporter struct {
	source ScheduleSource
	now    func() time.Time
	logger *zerolog.Logger
}

func NewExporter(source ScheduleSource, now func() time.Time, logger *zerolog.Logger) *Exporter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{source: source, now: now, logger: logger}
}

// WriteSchedule writes one row per slot on the "Schedule" sheet and the
// blocked dates on a "Blocked" sheet. Slot status is the one a vet would see
// right now, so lapsed slots show as expired.
func (e *Exporter) WriteSchedule(ctx context.Context, vetID string, out io.Writer) error {
	days, err := e.source.List(ctx, vetID)
	if err != nil {
		return err
	}
	now := e.now()

	w := newSheetWriter()
	defer func() { _ = w.close() }()

	if err := w.addSheet("Schedule"); err != nil {
		return err
	}
	if err := w.writeHeader(slotColumns); err != nil {
		return err
	}

	var blocked []string
	rows := 0
	for _, day := range days {
		if day.Blocked {
			blocked = append(blocked, day.Date)
			continue
		}
		weekday := ""
		if t, err := slots.ParseDateKey(day.Date, now.Location()); err == nil {
			weekday = slots.WeekdayOf(t).Label()
		}
		for _, slot := range day.Slots {
			row := []any{
				day.Date,
				weekday,
				slot.Start,
				slot.End,
				slots.FormatRange(slot.Start, slot.End),
				string(slots.Classify(slot, now)),
				slot.PetName,
				slot.OwnerName,
				slot.AppointmentID,
			}
			if err := w.writeRow(row); err != nil {
				return err
			}
			rows++
		}
	}

	if err := w.addSheet("Blocked"); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Date", "Display"}); err != nil {
		return err
	}
	for _, date := range blocked {
		if err := w.writeRow([]any{date, slots.FormatDate(date)}); err != nil {
			return err
		}
	}

	if err := w.save(out); err != nil {
		return err
	}
	e.logger.Debug().Str("vet_id", vetID).Int("rows", rows).Int("blocked", len(blocked)).Msg("schedule exported")
	return nil
}
