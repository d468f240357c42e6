package wstest_test

import (
	"testing"
	"time"

	"github.com/shieldkit/webshield/internal/wstest"
	"github.com/stretchr/testify/assert"
)

func TestVirtualScheduler(t *testing.T) {
	s := wstest.NewVirtualScheduler()

	var order []string
	s.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	s.AfterFunc(1*time.Second, func() {
		order = append(order, "first")
		s.AfterFunc(500*time.Millisecond, func() { order = append(order, "nested") })
	})

	stopped := s.AfterFunc(time.Second, func() { order = append(order, "stopped") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.Pending())

	s.Advance(time.Second)
	assert.Equal(t, []string{"first"}, order)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, s.Pending())

	s.Advance(time.Second)
	assert.Equal(t, []string{"first", "nested", "second"}, order)
	assert.Empty(t, s.Pending())
}
