package telegram

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{name: "zero", d: 0, want: "0秒"},
		{name: "negative clamped", d: -5 * time.Second, want: "0秒"},
		{name: "seconds only", d: 42 * time.Second, want: "42秒"},
		{name: "minutes and seconds", d: 3*time.Minute + 5*time.Second, want: "3分钟 5秒"},
		{name: "hours without seconds", d: 2 * time.Hour, want: "2小时"},
		{name: "days", d: 49*time.Hour + 61*time.Second, want: "2天 1小时 1分钟 1秒"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatDuration(tt.d)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
