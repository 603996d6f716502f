package waitlist

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the persisted party states.
type Status string

const (
	// StatusWaiting marks a party still queued for a table.
	StatusWaiting Status = "waiting"
	// StatusReady marks a party whose table is ready and who has been notified.
	StatusReady Status = "ready"
	// StatusSeated marks a party that has been seated.
	StatusSeated Status = "seated"
	// StatusNoShow marks a party that left or never answered the table-ready call.
	StatusNoShow Status = "no_show"
)

// LegacyStatusRemoved is the retired no-show spelling rewritten to StatusNoShow by the database migrations.
const LegacyStatusRemoved = "removed"

const (
	maxSlugLength  = 190
	maxNameLength  = 120
	maxNotesLength = 500
	maxPhoneLength = 32
	maxPartySize   = 50
)

var (
	// ErrInvalidSlug indicates a restaurant slug is empty, too long or not URL safe.
	ErrInvalidSlug = errors.New("waitlist: invalid restaurant slug")
	// ErrInvalidPartyID indicates a party identifier is empty or exceeds storage bounds.
	ErrInvalidPartyID = errors.New("waitlist: invalid party id")
	// ErrInvalidName indicates the party name is empty after trimming or too long.
	ErrInvalidName = errors.New("waitlist: invalid party name")
	// ErrInvalidSize indicates the party size is not a positive integer within bounds.
	ErrInvalidSize = errors.New("waitlist: invalid party size")
	// ErrInvalidPhone indicates the phone number exceeds storage bounds.
	ErrInvalidPhone = errors.New("waitlist: invalid phone")
	// ErrInvalidNotes indicates the notes exceed storage bounds.
	ErrInvalidNotes = errors.New("waitlist: invalid notes")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("waitlist: invalid status")
)

// Party is one waitlist entry for a restaurant queue.
type Party struct {
	ID             string     `gorm:"column:id;primaryKey;size:64;not null"`
	RestaurantSlug string     `gorm:"column:restaurant_slug;size:190;not null;index:idx_parties_slug_created,priority:1"`
	Name           string     `gorm:"column:name;size:120;not null"`
	Size           int        `gorm:"column:size;not null"`
	Phone          *string    `gorm:"column:phone;size:32"`
	Notes          *string    `gorm:"column:notes;type:text"`
	Status         Status     `gorm:"column:status;size:16;not null;index"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;index:idx_parties_slug_created,priority:2"`
	ReadyAt        *time.Time `gorm:"column:ready_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;not null"`
	Version        int64      `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (Party) TableName() string {
	return "parties"
}

// HasPhone reports whether the party opted into SMS notifications.
func (p Party) HasPhone() bool {
	return p.Phone != nil && strings.TrimSpace(*p.Phone) != ""
}

// RestaurantSlug is a validated restaurant scope identifier.
type RestaurantSlug string

// NewRestaurantSlug validates raw input and returns a RestaurantSlug.
func NewRestaurantSlug(rawInput string) (RestaurantSlug, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSlug)
	}
	if len(trimmed) > maxSlugLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	for _, r := range trimmed {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidSlug, r)
		}
	}
	return RestaurantSlug(trimmed), nil
}

// String returns the underlying slug.
func (s RestaurantSlug) String() string {
	return string(s)
}

// PartyID is a validated party identifier.
type PartyID string

// NewPartyID validates raw input and returns a PartyID.
func NewPartyID(rawInput string) (PartyID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPartyID)
	}
	if len(trimmed) > 64 {
		return "", fmt.Errorf("%w: exceeds 64 characters", ErrInvalidPartyID)
	}
	return PartyID(trimmed), nil
}

// String returns the underlying identifier.
func (id PartyID) String() string {
	return string(id)
}

// ParseStatus converts raw input into a Status.
func ParseStatus(rawInput string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(rawInput))) {
	case StatusWaiting:
		return StatusWaiting, nil
	case StatusReady:
		return StatusReady, nil
	case StatusSeated:
		return StatusSeated, nil
	case StatusNoShow, Status("no-show"):
		return StatusNoShow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

func normalizeName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return trimmed, nil
}

func validateSize(size int) error {
	if size < 1 || size > maxPartySize {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return nil
}

// optionalText trims the value and maps blank input to nil.
func optionalText(rawInput string, limit int, sentinel error) (*string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > limit {
		return nil, fmt.Errorf("%w: exceeds %d characters", sentinel, limit)
	}
	return &trimmed, nil
}
