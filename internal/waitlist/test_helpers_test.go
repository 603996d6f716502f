package waitlist

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testSlug = "joes-diner"

var testBaseTime = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "waitlist.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Party{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("party-%03d", p.next), nil
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newSteppingClock(start time.Time, step time.Duration) *steppingClock {
	return &steppingClock{current: start, step: step}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (p *recordingPublisher) PublishChange(event ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChangeEvent(nil), p.events...)
}

type recordingSink struct {
	mu       sync.Mutex
	requests []NotificationRequest
	reject   bool
}

func (s *recordingSink) Enqueue(request NotificationRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.requests = append(s.requests, request)
	return true
}

func (s *recordingSink) Requests() []NotificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotificationRequest(nil), s.requests...)
}

func newTestParty(id string, status Status, createdAt time.Time) Party {
	return Party{
		ID:             id,
		RestaurantSlug: testSlug,
		Name:           "Party " + id,
		Size:           2,
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
		Version:        1,
	}
}

func stringPointer(value string) *string {
	return &value
}
