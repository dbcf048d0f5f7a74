package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartRunsStepsInOrder(t *testing.T) {
	var order []string
	steps := []Step{
		{Name: "a", Start: func(context.Context) error { order = append(order, "a"); return nil }},
		{Name: "b", Start: func(context.Context) error { order = append(order, "b"); return nil }},
	}
	seq := New(steps, nil)
	require.NoError(t, seq.Start(context.Background()))
	require.Equal(t, []string{"a", "b"}, order)
}

func TestStopRunsInReverseOrderAndContinuesPastFailures(t *testing.T) {
	var stopped []string
	steps := []Step{
		{Name: "a", Start: func(context.Context) error { return nil }, Stop: func(context.Context) error { stopped = append(stopped, "a"); return nil }},
		{Name: "b", Start: func(context.Context) error { return nil }, Stop: func(context.Context) error {
			stopped = append(stopped, "b")
			return errors.New("b failed to close")
		}},
		{Name: "c", Start: func(context.Context) error { return nil }, Stop: func(context.Context) error { stopped = append(stopped, "c"); return nil }},
	}
	seq := New(steps, nil)
	require.NoError(t, seq.Start(context.Background()))
	require.Error(t, seq.Stop(context.Background()))
	require.Equal(t, []string{"c", "b", "a"}, stopped)
}

func TestStartStopsAlreadyStartedStepsOnFailure(t *testing.T) {
	var stopped []string
	steps := []Step{
		{Name: "a", Start: func(context.Context) error { return nil }, Stop: func(context.Context) error { stopped = append(stopped, "a"); return nil }},
		{Name: "b", Start: func(context.Context) error { return errors.New("boom") }},
	}
	seq := New(steps, nil)
	require.Error(t, seq.Start(context.Background()))
	require.Equal(t, []string{"a"}, stopped)
}
