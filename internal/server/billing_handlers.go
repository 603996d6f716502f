package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/billing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	webhookSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes    = 64 << 10
)

type checkoutRequest struct {
	PlanType      string `json:"plan_type"`
	BillingPeriod string `json:"billing_period"`
	RestaurantID  string `json:"restaurant_id"`
}

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type subscriptionPayload struct {
	RestaurantID       string     `json:"restaurant_id"`
	Status             string     `json:"status"`
	PlanType           string     `json:"plan_type,omitempty"`
	BillingPeriod      string     `json:"billing_period,omitempty"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type sendSMSRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendSMSResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

func (h *httpHandler) handleCheckout(c *gin.Context) {
	if h.billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured"})
		return
	}
	var request checkoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	session, err := h.billing.CreateCheckout(c.Request.Context(), billing.CheckoutInput{
		PlanType:      billing.PlanType(request.PlanType),
		BillingPeriod: billing.BillingPeriod(request.BillingPeriod),
		RestaurantID:  request.RestaurantID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkoutResponse{SessionID: session.ID, URL: session.URL})
}

func (h *httpHandler) handleGetSubscription(c *gin.Context) {
	if h.billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured"})
		return
	}
	subscription, err := h.billing.GetSubscription(c.Request.Context(), c.Param("restaurant_id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscriptionPayload{
		RestaurantID:       subscription.RestaurantID,
		Status:             subscription.Status,
		PlanType:           subscription.PlanType,
		BillingPeriod:      subscription.BillingPeriod,
		CurrentPeriodStart: utcPointer(subscription.CurrentPeriodStart),
		CurrentPeriodEnd:   utcPointer(subscription.CurrentPeriodEnd),
		UpdatedAt:          subscription.UpdatedAt.UTC(),
	})
}

func (h *httpHandler) handlePaymentWebhook(c *gin.Context) {
	if h.billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader(webhookSignatureHeader)); err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			h.logger.Warn("payment webhook rejected", zap.Error(err))
		}
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *httpHandler) handleSendSMS(c *gin.Context) {
	if h.sms == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_configured"})
		return
	}
	var request sendSMSRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	result, err := h.sms.Send(c.Request.Context(), request.Phone, request.Message)
	if err != nil {
		if status, _ := classifyError(err); status == http.StatusInternalServerError {
			// Transport failures reaching the gateway.
			h.logger.Warn("sms gateway unreachable", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_failed"})
			return
		}
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("sms sent",
		zap.String("host_id", c.GetString(hostIDContextKey)),
		zap.String("message_id", result.MessageID))
	c.JSON(http.StatusOK, sendSMSResponse{Success: true, MessageID: result.MessageID})
}
