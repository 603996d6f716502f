package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/auth"
	"github.com/MarcoPoloResearchLab/hostflow/internal/billing"
	"github.com/MarcoPoloResearchLab/hostflow/internal/notify"
	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	hostIDContextKey = "hostflow_host_id"

	defaultJoinRatePerMinute = 10
	defaultResyncInterval    = 30 * time.Second
	defaultHeartbeatInterval = 15 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingWaitlistService  = errors.New("waitlist service dependency required")
	errMissingRealtime         = errors.New("realtime dispatcher dependency required")
)

// SessionValidator authenticates host requests against the identity provider session.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.HostClaims, error)
}

// WaitlistService is the queue surface consumed by the HTTP layer.
type WaitlistService interface {
	Now() time.Time
	CreateParty(ctx context.Context, input waitlist.CreatePartyInput) (waitlist.Party, error)
	ListParties(ctx context.Context, slug string) ([]waitlist.Party, error)
	GetParty(ctx context.Context, slug, partyID string) (waitlist.Party, error)
	TransitionParty(ctx context.Context, slug, partyID string, target waitlist.Status) (waitlist.Party, error)
	UpdateParty(ctx context.Context, slug, partyID string, input waitlist.UpdatePartyInput) (waitlist.Party, error)
	DeleteParty(ctx context.Context, slug, partyID string) error
	Analytics(ctx context.Context, slug string, days int, location *time.Location) (waitlist.KPIs, error)
}

// BillingService is the subscription surface consumed by the HTTP layer.
type BillingService interface {
	CreateCheckout(ctx context.Context, input billing.CheckoutInput) (billing.CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	GetSubscription(ctx context.Context, restaurantID string) (billing.Subscription, error)
}

// Dependencies wires the HTTP handler. Billing and SMS are optional and answer 503 when absent.
type Dependencies struct {
	SessionValidator  SessionValidator
	Waitlist          WaitlistService
	Billing           BillingService
	SMS               notify.Sender
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	AllowedOrigins    []string
	TrustedProxies    []string
	JoinRatePerMinute int
	ResyncInterval    time.Duration
	HeartbeatInterval time.Duration
	AnalyticsLocation *time.Location
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Waitlist == nil {
		return nil, errMissingWaitlistService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	joinRate := deps.JoinRatePerMinute
	if joinRate <= 0 {
		joinRate = defaultJoinRatePerMinute
	}
	resyncInterval := deps.ResyncInterval
	if resyncInterval <= 0 {
		resyncInterval = defaultResyncInterval
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	location := deps.AnalyticsLocation
	if location == nil {
		location = time.UTC
	}

	router := gin.New()
	// Forwarded client addresses are honored only from these proxies; none by default.
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		waitlist:          deps.Waitlist,
		billing:           deps.Billing,
		sms:               deps.SMS,
		realtime:          deps.Realtime,
		logger:            logger,
		resyncInterval:    resyncInterval,
		heartbeatInterval: heartbeatInterval,
		location:          location,
	}
	joinLimiter := newClientRateLimiter(joinRate, time.Now)

	router.GET("/healthz", handler.handleHealth)
	router.POST("/webhooks/payments", handler.handlePaymentWebhook)

	guest := router.Group("/restaurants/:slug")
	guest.POST("/join", joinLimiter.middleware(), handler.handleGuestJoin)
	guest.GET("/queue", handler.handleQueueSummary)
	guest.GET("/parties/:id/status", handler.handleGuestStatus)
	guest.GET("/parties/:id/stream", handler.handleGuestStream)
	guest.GET("/kiosk/ws", handler.handleKioskSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/checkout", handler.handleCheckout)
	protected.GET("/subscriptions/:restaurant_id", handler.handleGetSubscription)
	protected.POST("/send-sms", handler.handleSendSMS)

	host := protected.Group("/restaurants/:slug")
	host.GET("/parties", handler.handleListParties)
	host.POST("/parties", handler.handleCreateParty)
	host.PATCH("/parties/:id", handler.handleUpdateParty)
	host.POST("/parties/:id/status", handler.handleTransitionParty)
	host.DELETE("/parties/:id", handler.handleDeleteParty)
	host.GET("/analytics", handler.handleAnalytics)
	host.GET("/stream", handler.handleHostStream)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" && trimmed != "*" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type httpHandler struct {
	sessions          SessionValidator
	waitlist          WaitlistService
	billing           BillingService
	sms               notify.Sender
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	resyncInterval    time.Duration
	heartbeatInterval time.Duration
	location          *time.Location
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest accepts a bearer header, the session cookie, or an access_token
// query parameter for EventSource clients that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	request := c.Request
	if request.Header.Get("Authorization") == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			request = request.Clone(request.Context())
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}
	claims, err := h.sessions.ValidateRequest(request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(hostIDContextKey, claims.HostID())
	c.Next()
}

type serviceCoder interface {
	Code() string
}

// writeServiceError maps domain failures onto HTTP statuses.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status, label := classifyError(err)
	body := gin.H{"error": label}
	var coded serviceCoder
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, waitlist.ErrPartyNotFound),
		errors.Is(err, billing.ErrSubscriptionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, waitlist.ErrInvalidTransition),
		errors.Is(err, waitlist.ErrTransitionConflict),
		errors.Is(err, waitlist.ErrVersionConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, waitlist.ErrInvalidSlug),
		errors.Is(err, waitlist.ErrInvalidPartyID),
		errors.Is(err, waitlist.ErrInvalidName),
		errors.Is(err, waitlist.ErrInvalidSize),
		errors.Is(err, waitlist.ErrInvalidPhone),
		errors.Is(err, waitlist.ErrInvalidNotes),
		errors.Is(err, waitlist.ErrInvalidStatus),
		errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrMissingRestaurant),
		errors.Is(err, notify.ErrInvalidRecipient),
		errors.Is(err, notify.ErrEmptyMessage):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, billing.ErrProviderNotConfigured),
		errors.Is(err, notify.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	case errors.Is(err, notify.ErrGatewayRejected):
		return http.StatusBadGateway, "gateway_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
