package notifier

import (
	"testing"
	"time"
)

func TestNew_RejectsBadInput(t *testing.T) {
	if _, err := New(nil, nil, "25:99", ""); err == nil {
		t.Fatalf("accepted invalid fire time")
	}
	if _, err := New(nil, nil, "09:00", "Mars/Olympus"); err == nil {
		t.Fatalf("accepted invalid timezone")
	}
}

func TestNextRun(t *testing.T) {
	n, err := New(nil, nil, "09:00", "UTC")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before fire time fires today",
			now:  time.Date(2024, 3, 12, 7, 30, 0, 0, time.UTC),
			want: time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "after fire time fires tomorrow",
			now:  time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at fire time fires tomorrow",
			now:  time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "month boundary rolls over",
			now:  time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.nextRun(tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("nextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
