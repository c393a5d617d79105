package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialRunsInOrder(t *testing.T) {
	s := NewSerial("test", nil)
	defer s.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		s.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerialSurvivesPanic(t *testing.T) {
	s := NewSerial("test", nil)
	defer s.Close()

	done := make(chan struct{})
	s.Execute(func() { panic("boom") })
	s.Execute(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor stopped after panic")
	}
}

func TestSerialScheduleWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	s := NewSerial("test", mock)
	defer s.Close()

	fired := make(chan struct{}, 1)
	s.Schedule(10*time.Second, func() { fired <- struct{}{} })

	mock.Add(5 * time.Second)
	select {
	case <-fired:
		t.Fatal("fired early")
	default:
	}

	mock.Add(5 * time.Second)
	require.Eventually(t, func() bool {
		select {
		case <-fired:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSerialDropsAfterClose(t *testing.T) {
	s := NewSerial("test", nil)
	s.Close()
	ran := false
	s.Execute(func() { ran = true })
	s.Close()
	assert.False(t, ran)
}

func TestManualRunsOnlyWhenAsked(t *testing.T) {
	m := NewManual()
	var got []string
	m.Execute(func() {
		got = append(got, "a")
		m.Execute(func() { got = append(got, "c") })
	})
	m.Execute(func() { got = append(got, "b") })

	assert.Empty(t, got)
	assert.Equal(t, 2, m.Pending())

	assert.Equal(t, 3, m.RunPending())
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestManualAdvanceFiresInDeadlineOrder(t *testing.T) {
	m := NewManual()
	start := m.Now()
	var got []string
	var at []time.Duration

	m.Schedule(3*time.Second, func() {
		got = append(got, "late")
		at = append(at, m.Now().Sub(start))
	})
	m.Schedule(1*time.Second, func() {
		got = append(got, "early")
		at = append(at, m.Now().Sub(start))
	})
	m.Schedule(10*time.Second, func() { got = append(got, "never") })

	m.Advance(5 * time.Second)
	assert.Equal(t, []string{"early", "late"}, got)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, at)
	assert.Equal(t, 5*time.Second, m.Now().Sub(start))
	assert.Equal(t, 1, m.Scheduled())
}

func TestManualTimerStop(t *testing.T) {
	m := NewManual()
	ran := false
	timer := m.Schedule(time.Second, func() { ran = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(2 * time.Second)
	assert.False(t, ran)
}

func TestManualTimerScheduledDuringAdvance(t *testing.T) {
	m := NewManual()
	count := 0
	var tick func()
	tick = func() {
		count++
		m.Schedule(time.Second, tick)
	}
	m.Schedule(time.Second, tick)

	m.Advance(5 * time.Second)
	assert.Equal(t, 5, count)
}

func TestManualZeroDelayRunsOnRunPending(t *testing.T) {
	m := NewManual()
	ran := false
	m.Schedule(0, func() { ran = true })
	m.RunPending()
	assert.True(t, ran)

	d, ok := m.NextDeadline()
	assert.False(t, ok)
	assert.Zero(t, d)
}
