package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anyTimeWindow() Window {
	return Window{}
}

func TestDispatch_RunsDueTasksOnly(t *testing.T) {
	cache, _, _ := setupVacation(t, time.Hour)

	var ran []string
	tasks := []Task{
		{
			Name:   "always",
			Window: anyTimeWindow(),
			Run: func(context.Context) error {
				ran = append(ran, "always")
				return nil
			},
		},
		{
			Name:   "weekday_only",
			Window: Window{Days: Weekdays()},
			Run: func(context.Context) error {
				ran = append(ran, "weekday_only")
				return nil
			},
		},
	}

	o := NewOrchestrator(tasks, cache, time.UTC, zerolog.Nop())

	// Saturday: only the unconstrained task runs
	require.NoError(t, o.Dispatch(context.Background(), time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"always"}, ran)

	ran = nil
	require.NoError(t, o.Dispatch(context.Background(), time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"always", "weekday_only"}, ran)
}

func TestDispatch_VacationSkipsEverything(t *testing.T) {
	cache, _, _ := setupVacation(t, time.Hour)
	require.NoError(t, cache.Set(true))

	ran := false
	o := NewOrchestrator([]Task{{
		Name:   "work",
		Window: anyTimeWindow(),
		Run: func(context.Context) error {
			ran = true
			return nil
		},
	}}, cache, time.UTC, zerolog.Nop())

	require.NoError(t, o.Dispatch(context.Background(), time.Now()))
	assert.False(t, ran)
}

func TestDispatch_FailureIsolation(t *testing.T) {
	cache, _, _ := setupVacation(t, time.Hour)

	bang := errors.New("task exploded")
	var secondRan, thirdRan bool

	o := NewOrchestrator([]Task{
		{Name: "fails", Window: anyTimeWindow(), Run: func(context.Context) error { return bang }},
		{Name: "panics", Window: anyTimeWindow(), Run: func(context.Context) error {
			secondRan = true
			panic("boom")
		}},
		{Name: "survives", Window: anyTimeWindow(), Run: func(context.Context) error {
			thirdRan = true
			return nil
		}},
	}, cache, time.UTC, zerolog.Nop())

	err := o.Dispatch(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, bang)
	assert.ErrorContains(t, err, "panic")
	assert.True(t, secondRan)
	assert.True(t, thirdRan, "Tasks after a panic still run")
}

func TestDispatch_ConvertsToLocalTime(t *testing.T) {
	cache, _, _ := setupVacation(t, time.Hour)
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	ran := false
	o := NewOrchestrator([]Task{{
		Name:   "morning",
		Window: Window{StartHour: 9, EndHour: 10},
		Run: func(context.Context) error {
			ran = true
			return nil
		},
	}}, cache, seoul, zerolog.Nop())

	// 00:30 UTC is 09:30 in Seoul
	require.NoError(t, o.Dispatch(context.Background(), time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)))
	assert.True(t, ran)
}
