package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
)

type partyPayload struct {
	ID             string     `json:"id"`
	RestaurantSlug string     `json:"restaurant_slug"`
	Name           string     `json:"name"`
	Size           int        `json:"size"`
	Phone          *string    `json:"phone,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadyAt        *time.Time `json:"ready_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Version        int64      `json:"version"`
}

type boardEntryPayload struct {
	partyPayload
	Position             int  `json:"position"`
	EstimatedWaitMinutes int  `json:"estimated_wait_minutes"`
	LikelyNoShow         bool `json:"likely_no_show"`
}

type boardPayload struct {
	RestaurantSlug string              `json:"restaurant_slug"`
	WaitingCount   int                 `json:"waiting_count"`
	GeneratedAt    time.Time           `json:"generated_at"`
	Parties        []boardEntryPayload `json:"parties"`
}

// guestStatusPayload omits host-only fields such as phone and notes.
type guestStatusPayload struct {
	ID                   string     `json:"id"`
	RestaurantSlug       string     `json:"restaurant_slug"`
	Name                 string     `json:"name"`
	Size                 int        `json:"size"`
	Status               string     `json:"status"`
	Position             int        `json:"position"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	WaitingCount         int        `json:"waiting_count"`
	CreatedAt            time.Time  `json:"created_at"`
	ReadyAt              *time.Time `json:"ready_at,omitempty"`
	GeneratedAt          time.Time  `json:"generated_at"`
}

type queueSummaryPayload struct {
	RestaurantSlug           string    `json:"restaurant_slug"`
	WaitingCount             int       `json:"waiting_count"`
	AverageWaitMinutes       int       `json:"average_wait_minutes"`
	NextEstimatedWaitMinutes int       `json:"next_estimated_wait_minutes"`
	GeneratedAt              time.Time `json:"generated_at"`
}

type dayCountPayload struct {
	Day     string `json:"day"`
	Parties int    `json:"parties"`
}

type hourCountPayload struct {
	Hour    string `json:"hour"`
	Parties int    `json:"parties"`
}

type sizeBucketPayload struct {
	Label   string `json:"label"`
	Parties int    `json:"parties"`
}

type analyticsPayload struct {
	PartiesToday          int                 `json:"parties_today"`
	GuestsToday           int                 `json:"guests_today"`
	NoShowRate            int                 `json:"no_show_rate"`
	BusiestDays           []dayCountPayload   `json:"busiest_days"`
	PeakHours             []hourCountPayload  `json:"peak_hours"`
	PartySizeDistribution []sizeBucketPayload `json:"party_size_distribution"`
	WindowStart           time.Time           `json:"window_start"`
	GeneratedAt           time.Time           `json:"generated_at"`
}

func newPartyPayload(party waitlist.Party) partyPayload {
	return partyPayload{
		ID:             party.ID,
		RestaurantSlug: party.RestaurantSlug,
		Name:           party.Name,
		Size:           party.Size,
		Phone:          party.Phone,
		Notes:          party.Notes,
		Status:         string(party.Status),
		CreatedAt:      party.CreatedAt.UTC(),
		ReadyAt:        utcPointer(party.ReadyAt),
		UpdatedAt:      party.UpdatedAt.UTC(),
		Version:        party.Version,
	}
}

func newBoardPayload(board waitlist.Board) boardPayload {
	entries := make([]boardEntryPayload, 0, len(board.Entries))
	for _, entry := range board.Entries {
		entries = append(entries, boardEntryPayload{
			partyPayload:         newPartyPayload(entry.Party),
			Position:             entry.Position,
			EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
			LikelyNoShow:         entry.LikelyNoShow,
		})
	}
	return boardPayload{
		RestaurantSlug: board.Slug,
		WaitingCount:   board.WaitingCount,
		GeneratedAt:    board.GeneratedAt.UTC(),
		Parties:        entries,
	}
}

func newGuestStatusPayload(view waitlist.PartyView) guestStatusPayload {
	payload := guestStatusPayload{
		ID:             view.Party.ID,
		RestaurantSlug: view.Party.RestaurantSlug,
		Name:           view.Party.Name,
		Size:           view.Party.Size,
		Status:         string(view.Party.Status),
		Position:       view.Position,
		WaitingCount:   view.WaitingCount,
		CreatedAt:      view.Party.CreatedAt.UTC(),
		ReadyAt:        utcPointer(view.Party.ReadyAt),
		GeneratedAt:    view.GeneratedAt.UTC(),
	}
	if view.Party.Status == waitlist.StatusWaiting {
		payload.EstimatedWaitMinutes = view.EstimatedWaitMinutes
	}
	return payload
}

func newQueueSummaryPayload(summary waitlist.QueueSummary) queueSummaryPayload {
	return queueSummaryPayload{
		RestaurantSlug:           summary.Slug,
		WaitingCount:             summary.WaitingCount,
		AverageWaitMinutes:       summary.AverageWaitMinutes,
		NextEstimatedWaitMinutes: summary.NextEstimatedWaitMinutes,
		GeneratedAt:              summary.GeneratedAt.UTC(),
	}
}

func newAnalyticsPayload(kpis waitlist.KPIs) analyticsPayload {
	payload := analyticsPayload{
		PartiesToday:          kpis.PartiesToday,
		GuestsToday:           kpis.GuestsToday,
		NoShowRate:            kpis.NoShowRate,
		BusiestDays:           make([]dayCountPayload, 0, len(kpis.BusiestDays)),
		PeakHours:             make([]hourCountPayload, 0, len(kpis.PeakHours)),
		PartySizeDistribution: make([]sizeBucketPayload, 0, len(kpis.PartySizeDistribution)),
		WindowStart:           kpis.WindowStart.UTC(),
		GeneratedAt:           kpis.GeneratedAt.UTC(),
	}
	for _, day := range kpis.BusiestDays {
		payload.BusiestDays = append(payload.BusiestDays, dayCountPayload{Day: day.Day, Parties: day.Parties})
	}
	for _, hour := range kpis.PeakHours {
		payload.PeakHours = append(payload.PeakHours, hourCountPayload{Hour: hour.Hour, Parties: hour.Parties})
	}
	for _, bucket := range kpis.PartySizeDistribution {
		payload.PartySizeDistribution = append(payload.PartySizeDistribution, sizeBucketPayload{Label: bucket.Label, Parties: bucket.Parties})
	}
	return payload
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
