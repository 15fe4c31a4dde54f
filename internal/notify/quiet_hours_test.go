package notify

import (
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 6, 10, hour, minute, 0, 0, time.UTC)
}

func TestQuietHoursWrappingMidnight(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"late evening inside", at(23, 30), true},
		{"early morning inside", at(6, 0), true},
		{"start boundary inside", at(22, 0), true},
		{"end boundary outside", at(8, 0), false},
		{"midday outside", at(12, 0), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := inQuietHours(tc.now, "22:00:00", "08:00:00"); got != tc.want {
				t.Errorf("inQuietHours(%s) = %v, want %v", tc.now.Format("15:04"), got, tc.want)
			}
		})
	}
}

func TestQuietHoursSameDayWindow(t *testing.T) {
	if !inQuietHours(at(13, 0), "12:00", "14:00") {
		t.Error("13:00 should be inside 12:00-14:00")
	}
	if inQuietHours(at(15, 0), "12:00", "14:00") {
		t.Error("15:00 should be outside 12:00-14:00")
	}
}

func TestQuietHoursDisabledWhenEmpty(t *testing.T) {
	if inQuietHours(at(23, 0), "", "") {
		t.Error("empty window should never match")
	}
	if inQuietHours(at(23, 0), "22:00", "") {
		t.Error("half-configured window should never match")
	}
}

func TestNextQuietHoursEnd(t *testing.T) {
	got := nextQuietHoursEnd(at(23, 30), "08:00:00")
	want := time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("next end after 23:30 = %v, want %v", got, want)
	}

	got = nextQuietHoursEnd(at(6, 0), "08:00:00")
	want = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("next end after 06:00 = %v, want %v", got, want)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"22:00:00", 22 * 60, false},
		{"08:30", 8*60 + 30, false},
		{"0:05", 5, false},
		{"25:00", 0, true},
		{"12:61", 0, true},
		{"noon", 0, true},
	}
	for _, tc := range tests {
		got, err := parseClock(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseClock(%q) err = %v", tc.in, err)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
