package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"televet/internal/docstore"
	"televet/internal/model"
	"televet/internal/repository"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Get(ctx context.Context, vetID, id string) (*model.AvailabilityTemplate, error) {
	args := m.Called(ctx, vetID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AvailabilityTemplate), args.Error(1)
}

func (m *mockRepo) List(ctx context.Context, vetID string) ([]model.AvailabilityTemplate, error) {
	args := m.Called(ctx, vetID)
	return args.Get(0).([]model.AvailabilityTemplate), args.Error(1)
}

func (m *mockRepo) Create(ctx context.Context, vetID string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error) {
	args := m.Called(ctx, vetID, tpl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AvailabilityTemplate), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, vetID, id string, tpl model.AvailabilityTemplate) (*model.AvailabilityTemplate, error) {
	args := m.Called(ctx, vetID, id, tpl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AvailabilityTemplate), args.Error(1)
}

func (m *mockRepo) Delete(ctx context.Context, vetID, id string) error {
	return m.Called(ctx, vetID, id).Error(0)
}

func slot(start, end string) model.TemplateSlot {
	return model.TemplateSlot{Start: start, End: end}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tpl     model.AvailabilityTemplate
		wantMsg string
	}{
		{
			name:    "missing name",
			tpl:     model.AvailabilityTemplate{Name: "  ", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("09:00", "10:00")}},
			wantMsg: "Please enter a template name.",
		},
		{
			name:    "unknown type",
			tpl:     model.AvailabilityTemplate{Name: "x", Type: "month"},
			wantMsg: "Template type must be week or day.",
		},
		{
			name: "inverted week slot carries day label",
			tpl: model.AvailabilityTemplate{Name: "x", Type: model.TemplateWeek, Days: map[model.Weekday][]model.TemplateSlot{
				model.Tuesday: {slot("11:00", "10:00")},
			}},
			wantMsg: "Tuesday: Start time must be before end time.",
		},
		{
			name: "overlap in one day",
			tpl: model.AvailabilityTemplate{Name: "x", Type: model.TemplateWeek, Days: map[model.Weekday][]model.TemplateSlot{
				model.Monday: {slot("09:00", "10:00"), slot("09:30", "10:30")},
			}},
			wantMsg: "Monday: Time slots must not overlap.",
		},
		{
			name:    "day template with no complete slot",
			tpl:     model.AvailabilityTemplate{Name: "x", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("09:00", "")}},
			wantMsg: "Day template must have at least one time slot.",
		},
		{
			name:    "garbage time",
			tpl:     model.AvailabilityTemplate{Name: "x", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("9am", "10:00")}},
			wantMsg: "Enter times as HH:MM.",
		},
		{
			name: "unknown weekday key",
			tpl: model.AvailabilityTemplate{Name: "x", Type: model.TemplateWeek, Days: map[model.Weekday][]model.TemplateSlot{
				"funday": {slot("09:00", "10:00")},
			}},
			wantMsg: "Unknown day in template.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.tpl)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTemplate)
			assert.Equal(t, tt.wantMsg, err.Error())

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestValidate_Cleans(t *testing.T) {
	clean, err := Validate(model.AvailabilityTemplate{
		Name: " Standard Hours ",
		Type: model.TemplateWeek,
		Days: map[model.Weekday][]model.TemplateSlot{
			model.Monday:  {slot("10:00", "10:30"), slot("9:00", "9:30"), slot("", "")},
			model.Tuesday: {},
		},
		Slots: []model.TemplateSlot{slot("01:00", "02:00")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Standard Hours", clean.Name)
	assert.Equal(t, []model.TemplateSlot{slot("09:00", "09:30"), slot("10:00", "10:30")}, clean.Days[model.Monday])
	assert.NotContains(t, clean.Days, model.Tuesday)
	assert.Nil(t, clean.Slots)

	// adjacent slots are fine
	_, err = Validate(model.AvailabilityTemplate{Name: "x", Type: model.TemplateDay, Slots: []model.TemplateSlot{
		slot("09:00", "10:00"), slot("10:00", "11:00"),
	}})
	assert.NoError(t, err)

	// an empty week template is allowed
	_, err = Validate(model.AvailabilityTemplate{Name: "x", Type: model.TemplateWeek})
	assert.NoError(t, err)
}

func TestCopyHelpers(t *testing.T) {
	week := model.AvailabilityTemplate{Name: "w", Type: model.TemplateWeek, Days: map[model.Weekday][]model.TemplateSlot{
		model.Monday: {slot("09:00", "10:00")},
	}}
	dayTpl := model.AvailabilityTemplate{Name: "d", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("14:00", "15:00")}}

	t.Run("weekday to weekday", func(t *testing.T) {
		out, err := CopyWeekday(week, model.Monday, model.Friday)
		require.NoError(t, err)
		assert.Equal(t, week.Days[model.Monday], out.Days[model.Friday])
		assert.NotContains(t, week.Days, model.Friday, "source template must not change")

		_, err = CopyWeekday(week, model.Sunday, model.Friday)
		assert.ErrorIs(t, err, ErrEmptySource)
		assert.Contains(t, err.Error(), "selected day has no slots")
	})

	t.Run("day template into weekday", func(t *testing.T) {
		out, err := CopyDayTemplateIntoWeekday(week, model.Wednesday, dayTpl)
		require.NoError(t, err)
		assert.Equal(t, dayTpl.Slots, out.Days[model.Wednesday])

		_, err = CopyDayTemplateIntoWeekday(week, model.Wednesday, week)
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("day template into day template", func(t *testing.T) {
		dst := model.AvailabilityTemplate{Name: "dst", Type: model.TemplateDay}
		out, err := CopyDayTemplate(dst, dayTpl)
		require.NoError(t, err)
		assert.Equal(t, "dst", out.Name)
		assert.Equal(t, dayTpl.Slots, out.Slots)

		_, err = CopyDayTemplate(dst, model.AvailabilityTemplate{Type: model.TemplateDay})
		assert.ErrorIs(t, err, ErrEmptySource)
		assert.Contains(t, err.Error(), "selected template has no slots")
	})
}

func TestService_CreateValidatesBeforeWrite(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := NewService(repo, nil)

	_, err := svc.Create(ctx, "vet1", model.AvailabilityTemplate{Type: model.TemplateDay})
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)

	want := model.AvailabilityTemplate{Name: "Mornings", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("09:00", "10:00")}}
	saved := want
	saved.ID = "t1"
	repo.On("Create", ctx, "vet1", want).Return(&saved, nil).Once()

	got, err := svc.Create(ctx, "vet1", model.AvailabilityTemplate{Name: "Mornings", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("9:00", "10:00")}})
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	repo.AssertExpectations(t)
}

func TestService_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := NewService(repo, nil)

	tpl := model.AvailabilityTemplate{Name: "x", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("09:00", "10:00")}}
	repo.On("Update", ctx, "vet1", "nope", tpl).Return(nil, ErrNotFound).Once()

	_, err := svc.Update(ctx, "vet1", "nope", tpl)
	assert.ErrorIs(t, err, ErrNotFound)
	repo.AssertExpectations(t)
}

func TestService_DeleteLeavesSchedules(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(repository.NewTemplateRepository(store), nil)
	schedules := repository.NewScheduleRepository(store)

	created, err := svc.Create(ctx, "vet1", model.AvailabilityTemplate{
		Name: "Mornings", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("09:00", "10:00")},
	})
	require.NoError(t, err)
	require.NoError(t, schedules.Put(ctx, "vet1", model.DaySchedule{
		Date:  "2026-03-10",
		Slots: []model.ScheduleSlot{{Start: "09:00", End: "10:00", Status: model.StatusAvailable}},
	}))

	require.NoError(t, svc.Delete(ctx, "vet1", created.ID))

	list, err := svc.List(ctx, "vet1")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, ok, err := schedules.Get(ctx, "vet1", "2026-03-10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_CopyOperations(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repository.NewTemplateRepository(docstore.NewMemoryStore()), nil)

	week, err := svc.Create(ctx, "vet1", model.AvailabilityTemplate{
		Name: "Week", Type: model.TemplateWeek,
		Days: map[model.Weekday][]model.TemplateSlot{model.Monday: {slot("09:00", "10:00")}},
	})
	require.NoError(t, err)
	day, err := svc.Create(ctx, "vet1", model.AvailabilityTemplate{
		Name: "Afternoon", Type: model.TemplateDay, Slots: []model.TemplateSlot{slot("14:00", "15:00")},
	})
	require.NoError(t, err)

	t.Run("copy weekday", func(t *testing.T) {
		got, err := svc.CopyDay(ctx, "vet1", week.ID, model.Monday, model.Friday)
		require.NoError(t, err)
		assert.Equal(t, []model.TemplateSlot{slot("09:00", "10:00")}, got.Days[model.Friday])

		stored, err := svc.Get(ctx, "vet1", week.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Days, 2)
	})

	t.Run("copy empty weekday", func(t *testing.T) {
		_, err := svc.CopyDay(ctx, "vet1", week.ID, model.Sunday, model.Monday)
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("copy weekday on day template", func(t *testing.T) {
		_, err := svc.CopyDay(ctx, "vet1", day.ID, model.Monday, model.Friday)
		assert.ErrorIs(t, err, ErrInvalidTemplate)
	})

	t.Run("day template into weekday", func(t *testing.T) {
		got, err := svc.CopyFrom(ctx, "vet1", week.ID, day.ID, model.Wednesday)
		require.NoError(t, err)
		assert.Equal(t, []model.TemplateSlot{slot("14:00", "15:00")}, got.Days[model.Wednesday])
	})

	t.Run("week template is not a source", func(t *testing.T) {
		_, err := svc.CopyFrom(ctx, "vet1", day.ID, week.ID, "")
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := svc.CopyFrom(ctx, "vet1", week.ID, "missing", model.Monday)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
