package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	defaultSendTimeout   = 10 * time.Second
	maxErrorBodyBytes    = 4096
)

var (
	// ErrNotConfigured indicates the SMS gateway credentials are missing.
	ErrNotConfigured = errors.New("notify: sms gateway not configured")
	// ErrInvalidRecipient indicates an empty phone number.
	ErrInvalidRecipient = errors.New("notify: recipient phone is required")
	// ErrEmptyMessage indicates an empty message body.
	ErrEmptyMessage = errors.New("notify: message body is required")
	// ErrGatewayRejected indicates the gateway answered with a non-success status.
	ErrGatewayRejected = errors.New("notify: sms gateway rejected message")
)

// SendResult carries the gateway identifier of an accepted message.
type SendResult struct {
	MessageID string
}

// Sender delivers a single text message.
type Sender interface {
	Send(ctx context.Context, phone, message string) (SendResult, error)
}

// TwilioConfig describes the messaging service credentials.
type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	MessagingServiceSID string
	BaseURL             string
	HTTPClient          *http.Client
}

// TwilioSender posts messages to the Twilio Messages resource.
type TwilioSender struct {
	accountSID          string
	authToken           string
	messagingServiceSID string
	baseURL             string
	httpClient          *http.Client
}

// NewTwilioSender builds a sender. Missing credentials are reported per call
// with ErrNotConfigured so the server can still start without SMS.
func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSendTimeout}
	}
	return &TwilioSender{
		accountSID:          strings.TrimSpace(cfg.AccountSID),
		authToken:           strings.TrimSpace(cfg.AuthToken),
		messagingServiceSID: strings.TrimSpace(cfg.MessagingServiceSID),
		baseURL:             baseURL,
		httpClient:          httpClient,
	}
}

// Configured reports whether all credentials are present.
func (s *TwilioSender) Configured() bool {
	return s != nil && s.accountSID != "" && s.authToken != "" && s.messagingServiceSID != ""
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Send posts one message and returns the gateway message sid.
func (s *TwilioSender) Send(ctx context.Context, phone, message string) (SendResult, error) {
	if !s.Configured() {
		return SendResult{}, ErrNotConfigured
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return SendResult{}, ErrInvalidRecipient
	}
	if strings.TrimSpace(message) == "" {
		return SendResult{}, ErrEmptyMessage
	}

	form := url.Values{}
	form.Set("MessagingServiceSid", s.messagingServiceSID)
	form.Set("To", phone)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, fmt.Errorf("notify: build request: %w", err)
	}
	request.SetBasicAuth(s.accountSID, s.authToken)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return SendResult{}, fmt.Errorf("notify: send request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if err != nil {
		return SendResult{}, fmt.Errorf("notify: read response: %w", err)
	}

	var decoded twilioMessageResponse
	_ = json.Unmarshal(body, &decoded)

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		detail := decoded.Message
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return SendResult{}, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, response.StatusCode, detail)
	}
	if decoded.SID == "" {
		return SendResult{}, fmt.Errorf("%w: response missing message sid", ErrGatewayRejected)
	}
	return SendResult{MessageID: decoded.SID}, nil
}
