package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/auth"
	"github.com/MarcoPoloResearchLab/hostflow/internal/billing"
	"github.com/MarcoPoloResearchLab/hostflow/internal/database"
	"github.com/MarcoPoloResearchLab/hostflow/internal/notify"
	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	testSlug       = "joes-diner"
	testIssuer     = "hostflow-idp"
	testCookieName = "hostflow_session"
	testHostID     = "host-42"
)

var testSigningSecret = []byte("test-signing-secret")

type testServer struct {
	handler    http.Handler
	waitlist   *waitlist.Service
	dispatcher *RealtimeDispatcher
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

func newTestServer(t *testing.T, configure func(*Dependencies)) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "hostflow.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	clock := &testClock{current: time.Now().UTC().Add(-time.Hour), step: time.Second}
	dispatcher := NewRealtimeDispatcher()
	service, err := waitlist.NewService(waitlist.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: waitlist.NewUUIDProvider(),
		Publisher:  dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct waitlist service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: testSigningSecret,
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}

	deps := Dependencies{
		SessionValidator: validator,
		Waitlist:         service,
		Realtime:         dispatcher,
		Logger:           zap.NewNop(),
	}
	if configure != nil {
		configure(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, waitlist: service, dispatcher: dispatcher}
}

func signHostToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := auth.HostClaims{
		Email: "host@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func validHostToken(t *testing.T) string {
	return signHostToken(t, testHostID, time.Now().Add(time.Hour))
}

func performRequest(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
	return value
}

type stubSender struct {
	result notify.SendResult
	err    error
	calls  []string
}

func (s *stubSender) Send(_ context.Context, phone, message string) (notify.SendResult, error) {
	s.calls = append(s.calls, phone+"|"+message)
	return s.result, s.err
}

type stubBilling struct {
	session     billing.CheckoutSession
	checkoutErr error
	webhookErr  error
	lastInput   billing.CheckoutInput
	lastPayload []byte
	lastHeader  string
	stored      map[string]billing.Subscription
}

func (s *stubBilling) CreateCheckout(_ context.Context, input billing.CheckoutInput) (billing.CheckoutSession, error) {
	s.lastInput = input
	return s.session, s.checkoutErr
}

func (s *stubBilling) HandleWebhook(_ context.Context, payload []byte, signatureHeader string) error {
	s.lastPayload = payload
	s.lastHeader = signatureHeader
	return s.webhookErr
}

func (s *stubBilling) GetSubscription(_ context.Context, restaurantID string) (billing.Subscription, error) {
	subscription, ok := s.stored[restaurantID]
	if !ok {
		return billing.Subscription{}, billing.ErrSubscriptionNotFound
	}
	return subscription, nil
}
