package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsPastDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	noDeadline := Survey{}
	assert.False(t, noDeadline.IsPastDue(now), "a survey without a close date never expires")

	open := Survey{CloseDate: now.Add(time.Hour)}
	assert.False(t, open.IsPastDue(now))

	due := Survey{CloseDate: now.Add(-time.Minute)}
	assert.True(t, due.IsPastDue(now))
}
