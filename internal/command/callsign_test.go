package command

import "testing"

func TestParseCallsign(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"AB1CDE", "AB1CDE", true},
		{"ab1cde", "AB1CDE", true},
		{"EA8/AB1CDE", "AB1CDE", true},
		{"AB1CDE/P", "AB1CDE", true},
		{"EA8/AB1CDE/P", "AB1CDE", true},
		{"W1AW", "W1AW", true},
		{"NOTACALL", "", false},
		{"123456", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseCallsign(tt.input)
		if tt.ok && err != nil {
			t.Errorf("ParseCallsign(%q) failed: %v", tt.input, err)
			continue
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseCallsign(%q) = %q, want error", tt.input, got)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCallsign(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
