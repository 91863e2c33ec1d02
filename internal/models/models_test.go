package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityMedium, false},
		{"low", PriorityLow, false},
		{" HIGH ", PriorityHigh, false},
		{"Urgent", PriorityUrgent, false},
		{"critical", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTask_PresenceFlags(t *testing.T) {
	task := &Task{Title: "inspect pump"}
	assert.False(t, task.HasPhoto())
	assert.False(t, task.HasLocation())

	empty := ""
	task.PhotoPath = &empty
	assert.False(t, task.HasPhoto())

	path := "/photos/pump.jpg"
	task.PhotoPath = &path
	assert.True(t, task.HasPhoto())

	lat := 52.52
	task.Latitude = &lat
	assert.False(t, task.HasLocation())

	lon := 13.405
	task.Longitude = &lon
	assert.True(t, task.HasLocation())
}

func TestTask_MarkCompleted(t *testing.T) {
	task := &Task{Title: "replace filter"}
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	task.MarkCompleted("anna", at)

	assert.True(t, task.Completed)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, at.Equal(*task.CompletedAt))
	require.NotNil(t, task.CompletedBy)
	assert.Equal(t, "anna", *task.CompletedBy)

	other := &Task{Title: "anonymous"}
	other.MarkCompleted("", at)
	assert.Nil(t, other.CompletedBy)
}

func TestOperation_Valid(t *testing.T) {
	assert.True(t, OpCreate.Valid())
	assert.True(t, OpUpdate.Valid())
	assert.True(t, OpDelete.Valid())
	assert.False(t, Operation("UPSERT").Valid())
}
