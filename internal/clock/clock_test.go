package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_SetAndAdvance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(base)

	assert.Equal(t, base, c.Now())

	c.Advance(48 * time.Hour)
	assert.Equal(t, base.Add(48*time.Hour), c.Now())

	c.Set(base)
	assert.Equal(t, base, c.Now())
}

func TestSystem_Advances(t *testing.T) {
	c := System{}
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Errorf("system clock went backward: %v then %v", a, b)
	}
}
