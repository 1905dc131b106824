package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_RunsCallbacksInDeadlineOrder(t *testing.T) {
	f := NewFake()
	var order []string
	f.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	f.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	f.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	f.Advance(2 * time.Second)
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, 1, f.Pending())

	f.Advance(time.Second)
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, 3*time.Second, f.Now())
}

func TestFake_StoppedTimerNeverFires(t *testing.T) {
	f := NewFake()
	fired := false
	tm := f.AfterFunc(time.Second, func() { fired = true })
	require.True(t, tm.Stop())
	require.False(t, tm.Stop())

	f.Advance(time.Minute)
	require.False(t, fired)
	require.Zero(t, f.Pending())
}

func TestFake_CallbackMayScheduleInsideWindow(t *testing.T) {
	f := NewFake()
	count := 0
	f.AfterFunc(time.Second, func() {
		count++
		f.AfterFunc(time.Second, func() { count++ })
	})

	f.Advance(5 * time.Second)
	require.Equal(t, 2, count)
}
