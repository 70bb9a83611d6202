package sanitize_test

import (
	"testing"

	"github.com/edgard/cupidbot/internal/sanitize"
)

func TestPlainText(t *testing.T) {
	t.Parallel()
	p := sanitize.NewPlainTextPolicy()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "  ", want: ""},
		{name: "plain", in: "Hey there!", want: "Hey there!"},
		{name: "emphasis", in: "I **love** hiking too", want: "I love hiking too"},
		{name: "html", in: "<b>Coffee</b> this weekend?", want: "Coffee this weekend?"},
		{name: "entities", in: "Tom & Jerry's", want: "Tom & Jerry's"},
		{name: "paragraphs", in: "First line\n\n\n\nSecond line", want: "First line\n\nSecond line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := p.Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
