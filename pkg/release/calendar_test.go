package release

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestAddBusinessDays(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		n     int
		want  time.Time
	}{
		// 2026-03-02 is a Monday
		{"monday", day(2026, 3, 2, 9), 3, day(2026, 3, 5, 9)},
		{"wednesday crosses weekend", day(2026, 3, 4, 18), 3, day(2026, 3, 9, 18)},
		{"friday", day(2026, 3, 6, 12), 3, day(2026, 3, 11, 12)},
		{"saturday counts from monday", day(2026, 3, 7, 8), 3, day(2026, 3, 11, 8)},
		{"sunday", day(2026, 3, 8, 23), 1, day(2026, 3, 9, 23)},
		{"zero", day(2026, 3, 7, 8), 0, day(2026, 3, 7, 8)},
		{"two weeks", day(2026, 3, 2, 0), 10, day(2026, 3, 16, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AddBusinessDays(tc.start, tc.n)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
			assert.True(t, IsBusinessDay(got) || tc.n == 0)
		})
	}
}

func TestAddBusinessDays_NeverEarlierThanCalendarDays(t *testing.T) {
	start := day(2026, 1, 1, 12)
	for i := 0; i < 14; i++ {
		s := start.AddDate(0, 0, i)
		assert.False(t, AddBusinessDays(s, 3).Before(s.AddDate(0, 0, 3)))
	}
}
