package toast

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkQueueAndDrain(t *testing.T) {
	s := NewSink(10)

	s.Show("saved", SeveritySuccess)
	s.Show("failed", SeverityError)

	toasts := s.Drain()
	require.Len(t, toasts, 2)
	assert.Equal(t, "saved", toasts[0].Message)
	assert.Equal(t, SeveritySuccess, toasts[0].Severity)
	assert.Equal(t, "failed", toasts[1].Message)

	assert.Empty(t, s.Drain())
}

func TestSinkDropsOldestWhenFull(t *testing.T) {
	s := NewSink(3)

	for i := 0; i < 5; i++ {
		s.Show(fmt.Sprintf("msg-%d", i), SeverityInfo)
	}

	toasts := s.Drain()
	require.Len(t, toasts, 3)
	assert.Equal(t, "msg-2", toasts[0].Message)
	assert.Equal(t, "msg-4", toasts[2].Message)
}

func TestSinkIDsMonotonic(t *testing.T) {
	s := NewSink(2)
	s.Show("a", SeverityInfo)
	s.Show("b", SeverityInfo)
	s.Show("c", SeverityInfo)

	toasts := s.Drain()
	require.Len(t, toasts, 2)
	assert.Equal(t, 1, toasts[0].ID)
	assert.Equal(t, 2, toasts[1].ID)
}
