package views

import (
	"testing"
	"time"

	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/stretchr/testify/assert"
)

func TestFamilyViewPresence(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.Local)
	fv := NewFamilyView(ui.DefaultTheme())
	fv.now = func() time.Time { return now }

	fv.Update([]api.Contact{
		{Profile: call.Profile{ID: "u2", Name: "Mom"}, PresenceKnown: true, Online: true},
		{Profile: call.Profile{ID: "u3", Name: "Dad"}, PresenceKnown: true, LastSeen: now.Add(-5 * time.Minute).UnixMilli()},
		{Profile: call.Profile{ID: "u4"}},
	})

	assert.Equal(t, 4, fv.GetRowCount())
	assert.Equal(t, " Mom", fv.GetCell(1, 0).Text)
	assert.Equal(t, " online", fv.GetCell(1, 1).Text)
	assert.Equal(t, " offline", fv.GetCell(2, 1).Text)
	assert.Equal(t, " 5 min ago", fv.GetCell(2, 2).Text)
	assert.Equal(t, " u4", fv.GetCell(3, 0).Text)
	assert.Equal(t, " unknown", fv.GetCell(3, 1).Text)

	fv.Select(2, 0)
	assert.Equal(t, "u3", fv.SelectedContact())
}

func TestLastSeen(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.Local)
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-42 * time.Minute), "42 min ago"},
		{now.Add(-3 * time.Hour), "today 15:00"},
		{now.AddDate(0, 0, -2), "03/08 18:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lastSeen(tt.at, now))
	}
}
