package waitlist

import (
	"fmt"
	"math"
	"slices"
	"time"
)

const (
	// AverageWaitMinutes is the fixed per-position wait estimate.
	AverageWaitMinutes = 10
	// DefaultNoShowThreshold is how long a ready party may go unseated before being flagged.
	DefaultNoShowThreshold = 5 * time.Minute

	peakHourFirst   = 11
	peakHourBuckets = 12
)

var weekdayLabels = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var partySizeLabels = []string{"1–2", "3–4", "5–6", "7+"}

// ComputeWaitingOrder returns the waiting parties in FIFO order.
// The 1-based index of each element is its queue position.
func ComputeWaitingOrder(parties []Party) []Party {
	waiting := make([]Party, 0, len(parties))
	for _, party := range parties {
		if party.Status == StatusWaiting {
			waiting = append(waiting, party)
		}
	}
	slices.SortStableFunc(waiting, func(a, b Party) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return waiting
}

// WaitingPositions maps party ids to their 1-based queue positions.
func WaitingPositions(parties []Party) map[string]int {
	waiting := ComputeWaitingOrder(parties)
	positions := make(map[string]int, len(waiting))
	for index, party := range waiting {
		positions[party.ID] = index + 1
	}
	return positions
}

// EstimateWaitMinutes returns the linear wait estimate for a queue position.
func EstimateWaitMinutes(position int) int {
	return max(position, 0) * AverageWaitMinutes
}

// IsLikelyNoShow reports whether a ready party has gone unseated past threshold.
func IsLikelyNoShow(party Party, now time.Time, threshold time.Duration) bool {
	if party.Status != StatusReady || party.ReadyAt == nil {
		return false
	}
	return now.Sub(*party.ReadyAt) > threshold
}

// AverageElapsedWaitMinutes averages the whole minutes waiting parties have spent in the queue.
func AverageElapsedWaitMinutes(parties []Party, now time.Time) int {
	waiting := ComputeWaitingOrder(parties)
	if len(waiting) == 0 {
		return 0
	}
	total := 0
	for _, party := range waiting {
		total += int(math.Floor(now.Sub(party.CreatedAt).Minutes()))
	}
	return int(math.Round(float64(total) / float64(len(waiting))))
}

// DayCount is the number of parties created on one weekday.
type DayCount struct {
	Day     string
	Parties int
}

// HourCount is the number of parties created within one clock hour.
type HourCount struct {
	Hour    string
	Parties int
}

// SizeBucket is the number of parties whose headcount falls in a range.
type SizeBucket struct {
	Label   string
	Parties int
}

// KPIs aggregates analytics for a trailing window.
type KPIs struct {
	PartiesToday          int
	GuestsToday           int
	NoShowRate            int
	BusiestDays           []DayCount
	PeakHours             []HourCount
	PartySizeDistribution []SizeBucket
	WindowStart           time.Time
	GeneratedAt           time.Time
}

// ComputeKPIs aggregates parties created within [windowStart, now).
// Calendar days and hours are evaluated in location.
func ComputeKPIs(parties []Party, windowStart, now time.Time, location *time.Location) KPIs {
	if location == nil {
		location = time.Local
	}
	localNow := now.In(location)
	todayYear, todayMonth, todayDay := localNow.Date()

	dayCounts := make([]int, len(weekdayLabels))
	hourCounts := make([]int, peakHourBuckets)
	sizeCounts := make([]int, len(partySizeLabels))
	partiesToday, guestsToday, noShowToday := 0, 0, 0

	for _, party := range parties {
		if party.CreatedAt.Before(windowStart) || !party.CreatedAt.Before(now) {
			continue
		}
		created := party.CreatedAt.In(location)

		year, month, day := created.Date()
		if year == todayYear && month == todayMonth && day == todayDay {
			partiesToday++
			guestsToday += party.Size
			if party.Status == StatusNoShow {
				noShowToday++
			}
		}

		dayCounts[created.Weekday()]++

		if hour := created.Hour(); hour >= peakHourFirst && hour < peakHourFirst+peakHourBuckets {
			hourCounts[hour-peakHourFirst]++
		}

		sizeCounts[sizeBucketIndex(party.Size)]++
	}

	kpis := KPIs{
		PartiesToday: partiesToday,
		GuestsToday:  guestsToday,
		WindowStart:  windowStart,
		GeneratedAt:  now,
	}
	if partiesToday > 0 {
		kpis.NoShowRate = int(math.Round(float64(noShowToday) / float64(partiesToday) * 100))
	}

	kpis.BusiestDays = make([]DayCount, 0, len(weekdayLabels))
	for index, label := range weekdayLabels {
		kpis.BusiestDays = append(kpis.BusiestDays, DayCount{Day: label, Parties: dayCounts[index]})
	}
	slices.SortStableFunc(kpis.BusiestDays, func(a, b DayCount) int {
		return b.Parties - a.Parties
	})

	kpis.PeakHours = make([]HourCount, 0, peakHourBuckets)
	for index := range peakHourBuckets {
		kpis.PeakHours = append(kpis.PeakHours, HourCount{
			Hour:    hourLabel(peakHourFirst + index),
			Parties: hourCounts[index],
		})
	}

	kpis.PartySizeDistribution = make([]SizeBucket, 0, len(partySizeLabels))
	for index, label := range partySizeLabels {
		kpis.PartySizeDistribution = append(kpis.PartySizeDistribution, SizeBucket{Label: label, Parties: sizeCounts[index]})
	}
	return kpis
}

func sizeBucketIndex(size int) int {
	switch {
	case size <= 2:
		return 0
	case size <= 4:
		return 1
	case size <= 6:
		return 2
	default:
		return 3
	}
}

func hourLabel(hour int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:00 %s", display, suffix)
}
