package views

import (
	"testing"

	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/stretchr/testify/assert"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Vovó Lúcia", "Vovó Lúcia"},
		{"  Tia\tAna \n ", "Tia Ana"},
		{"Dad \U0001F44D\U0001F3FD", "Dad \U0001F44D"},
		{"\U0001F468\u200d\U0001F469\u200d\U0001F467", "\U0001F468\U0001F469\U0001F467"},
		{"❤\ufe0f Mom", "❤ Mom"},
		{"\u202eevil", "evil"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanName(tt.in), "cleanName(%q)", tt.in)
	}
}

func TestContactNameIsNotStyled(t *testing.T) {
	fv := NewFamilyView(ui.DefaultTheme())
	fv.Update([]api.Contact{{Profile: call.Profile{ID: "u9", Name: "Bia [red]"}}})
	assert.Equal(t, " Bia [red[]", fv.GetCell(1, 0).Text)
}
