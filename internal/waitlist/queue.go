package waitlist

import (
	"slices"
	"time"
)

// BoardEntry is one row of the host board.
type BoardEntry struct {
	Party                Party
	Position             int
	EstimatedWaitMinutes int
	LikelyNoShow         bool
}

// Board is the host view of a restaurant queue.
type Board struct {
	Slug         string
	Entries      []BoardEntry
	WaitingCount int
	GeneratedAt  time.Time
}

// PartyView is the guest view of a single party.
type PartyView struct {
	Party                Party
	Position             int
	EstimatedWaitMinutes int
	WaitingCount         int
	GeneratedAt          time.Time
}

// QueueSummary is the aggregate kiosk view of a restaurant queue.
type QueueSummary struct {
	Slug                     string
	WaitingCount             int
	AverageWaitMinutes       int
	NextEstimatedWaitMinutes int
	GeneratedAt              time.Time
}

// Projection holds the party set of one restaurant and derives queue views from it.
// A Projection is owned by a single subscriber and is not safe for concurrent use.
type Projection struct {
	slug            string
	parties         []Party
	deleted         map[string]struct{}
	noShowThreshold time.Duration
}

// NewProjection seeds a projection from a full read of the restaurant's parties.
// Parties from other restaurants are dropped.
func NewProjection(slug string, parties []Party) *Projection {
	projection := &Projection{
		slug:            slug,
		deleted:         make(map[string]struct{}),
		noShowThreshold: DefaultNoShowThreshold,
	}
	projection.Reset(parties)
	return projection
}

// Reset replaces the projection's parties with a fresh read. Deleted party ids
// stay remembered so a late event cannot bring them back.
func (p *Projection) Reset(parties []Party) {
	p.parties = make([]Party, 0, len(parties))
	for _, party := range parties {
		if party.RestaurantSlug != p.slug {
			continue
		}
		if _, gone := p.deleted[party.ID]; gone {
			continue
		}
		p.parties = append(p.parties, party)
	}
	slices.SortStableFunc(p.parties, func(a, b Party) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// Slug returns the restaurant scope of the projection.
func (p *Projection) Slug() string {
	return p.slug
}

// Parties returns a copy of the party set in creation order.
func (p *Projection) Parties() []Party {
	return slices.Clone(p.parties)
}

// Apply folds a change event into the projection and reports whether anything changed.
// Events for other restaurants, updates older than the held row and any event for a
// deleted party are ignored.
func (p *Projection) Apply(event ChangeEvent) bool {
	if event.Slug != p.slug || event.Party.RestaurantSlug != p.slug {
		return false
	}
	index := slices.IndexFunc(p.parties, func(party Party) bool {
		return party.ID == event.Party.ID
	})

	switch event.Operation {
	case ChangeDelete:
		p.deleted[event.Party.ID] = struct{}{}
		if index < 0 {
			return false
		}
		p.parties = slices.Delete(p.parties, index, index+1)
		return true
	case ChangeInsert, ChangeUpdate:
		if _, gone := p.deleted[event.Party.ID]; gone {
			return false
		}
		if index >= 0 {
			if event.Party.Version < p.parties[index].Version {
				return false
			}
			p.parties[index] = event.Party
			return true
		}
		p.insertOrdered(event.Party)
		return true
	default:
		return false
	}
}

func (p *Projection) insertOrdered(party Party) {
	position := len(p.parties)
	for position > 0 && p.parties[position-1].CreatedAt.After(party.CreatedAt) {
		position--
	}
	p.parties = slices.Insert(p.parties, position, party)
}

// Board derives the host board at now.
func (p *Projection) Board(now time.Time) Board {
	positions := WaitingPositions(p.parties)
	board := Board{
		Slug:         p.slug,
		Entries:      make([]BoardEntry, 0, len(p.parties)),
		WaitingCount: len(positions),
		GeneratedAt:  now,
	}
	for _, party := range p.parties {
		position := positions[party.ID]
		entry := BoardEntry{
			Party:        party,
			Position:     position,
			LikelyNoShow: IsLikelyNoShow(party, now, p.noShowThreshold),
		}
		if party.Status == StatusWaiting {
			entry.EstimatedWaitMinutes = EstimateWaitMinutes(position)
		}
		board.Entries = append(board.Entries, entry)
	}
	return board
}

// PartyStatus derives the guest view of one party at now.
func (p *Projection) PartyStatus(partyID string, now time.Time) (PartyView, bool) {
	index := slices.IndexFunc(p.parties, func(party Party) bool {
		return party.ID == partyID
	})
	if index < 0 {
		return PartyView{}, false
	}
	positions := WaitingPositions(p.parties)
	position := positions[partyID]
	return PartyView{
		Party:                p.parties[index],
		Position:             position,
		EstimatedWaitMinutes: EstimateWaitMinutes(position),
		WaitingCount:         len(positions),
		GeneratedAt:          now,
	}, true
}

// Summary derives the kiosk queue summary at now.
func (p *Projection) Summary(now time.Time) QueueSummary {
	waiting := ComputeWaitingOrder(p.parties)
	return QueueSummary{
		Slug:                     p.slug,
		WaitingCount:             len(waiting),
		AverageWaitMinutes:       AverageElapsedWaitMinutes(waiting, now),
		NextEstimatedWaitMinutes: EstimateWaitMinutes(len(waiting) + 1),
		GeneratedAt:              now,
	}
}
