package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventBoard       = "board"
	eventStatus      = "status"
	eventRemoved     = "removed"
	eventHeartbeat   = "heartbeat"
	eventSummary     = "queue_summary"
	socketWriteWait  = 10 * time.Second
	socketReadLimit  = 512
	socketPongWait   = 60 * time.Second
	socketPingPeriod = socketPongWait * 9 / 10
)

var kioskUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type socketMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// queueFeed owns one subscriber's projection. The subscription is opened before the
// snapshot read so no committed change falls between the two.
type queueFeed struct {
	handler    *httpHandler
	slug       string
	events     <-chan waitlist.ChangeEvent
	cleanup    func()
	projection *waitlist.Projection
}

func (h *httpHandler) openQueueFeed(ctx context.Context, rawSlug string) (*queueFeed, error) {
	slug, err := waitlist.NewRestaurantSlug(rawSlug)
	if err != nil {
		return nil, err
	}
	events, cleanup := h.realtime.Subscribe(ctx, slug.String())
	feed := &queueFeed{handler: h, slug: slug.String(), events: events, cleanup: cleanup}
	if err := feed.resync(ctx); err != nil {
		cleanup()
		return nil, err
	}
	h.logger.Debug("queue feed opened",
		zap.String("restaurant_slug", feed.slug),
		zap.Int("subscribers", h.realtime.SubscriberCount(feed.slug)),
	)
	return feed, nil
}

func (f *queueFeed) resync(ctx context.Context) error {
	parties, err := f.handler.waitlist.ListParties(ctx, f.slug)
	if err != nil {
		return err
	}
	if f.projection == nil {
		f.projection = waitlist.NewProjection(f.slug, parties)
		return nil
	}
	f.projection.Reset(parties)
	return nil
}

func (f *queueFeed) close() {
	f.cleanup()
}

func prepareEventStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

func writeEvent(c *gin.Context, name string, payload any) {
	c.SSEvent(name, payload)
	c.Writer.Flush()
}

func (h *httpHandler) handleHostStream(c *gin.Context) {
	ctx := c.Request.Context()
	feed, err := h.openQueueFeed(ctx, c.Param("slug"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer feed.close()

	prepareEventStream(c)
	writeEvent(c, eventBoard, newBoardPayload(feed.projection.Board(h.waitlist.Now())))

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	resync := time.NewTicker(h.resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-feed.events:
			if !ok {
				return
			}
			if feed.projection.Apply(event) {
				writeEvent(c, eventBoard, newBoardPayload(feed.projection.Board(h.waitlist.Now())))
			}
		case <-resync.C:
			if err := feed.resync(ctx); err != nil {
				h.logger.Warn("board resync failed", zap.String("restaurant_slug", feed.slug), zap.Error(err))
				continue
			}
			writeEvent(c, eventBoard, newBoardPayload(feed.projection.Board(h.waitlist.Now())))
		case <-heartbeat.C:
			writeEvent(c, eventHeartbeat, gin.H{"timestamp": h.waitlist.Now().UTC()})
		}
	}
}

func (h *httpHandler) handleGuestStream(c *gin.Context) {
	ctx := c.Request.Context()
	partyID := strings.TrimSpace(c.Param("id"))
	if _, err := h.waitlist.GetParty(ctx, c.Param("slug"), partyID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	feed, err := h.openQueueFeed(ctx, c.Param("slug"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer feed.close()

	prepareEventStream(c)
	// sendStatus reports false once the party has left the queue.
	sendStatus := func() bool {
		view, ok := feed.projection.PartyStatus(partyID, h.waitlist.Now())
		if !ok {
			writeEvent(c, eventRemoved, gin.H{"id": partyID})
			return false
		}
		writeEvent(c, eventStatus, newGuestStatusPayload(view))
		return true
	}
	if !sendStatus() {
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	resync := time.NewTicker(h.resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-feed.events:
			if !ok {
				return
			}
			if feed.projection.Apply(event) && !sendStatus() {
				return
			}
		case <-resync.C:
			if err := feed.resync(ctx); err != nil {
				h.logger.Warn("guest status resync failed", zap.String("restaurant_slug", feed.slug), zap.Error(err))
				continue
			}
			if !sendStatus() {
				return
			}
		case <-heartbeat.C:
			writeEvent(c, eventHeartbeat, gin.H{"timestamp": h.waitlist.Now().UTC()})
		}
	}
}

func (h *httpHandler) handleKioskSocket(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	feed, err := h.openQueueFeed(ctx, c.Param("slug"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer feed.close()

	conn, err := kioskUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("kiosk websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(socketReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sendSummary := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		message := socketMessage{Event: eventSummary, Data: newQueueSummaryPayload(feed.projection.Summary(h.waitlist.Now()))}
		if err := conn.WriteJSON(message); err != nil {
			h.logger.Debug("kiosk websocket write failed", zap.Error(err))
			return false
		}
		return true
	}
	if !sendSummary() {
		return
	}

	ping := time.NewTicker(socketPingPeriod)
	defer ping.Stop()
	resync := time.NewTicker(h.resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-feed.events:
			if !ok {
				return
			}
			if feed.projection.Apply(event) && !sendSummary() {
				return
			}
		case <-resync.C:
			if err := feed.resync(ctx); err != nil {
				h.logger.Warn("kiosk resync failed", zap.String("restaurant_slug", feed.slug), zap.Error(err))
				continue
			}
			if !sendSummary() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
		}
	}
}
