package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTwilioSenderPostsFormWithBasicAuth(t *testing.T) {
	var (
		gotPath    string
		gotUser    string
		gotPass    string
		gotService string
		gotTo      string
		gotBody    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotPath = request.URL.Path
		gotUser, gotPass, _ = request.BasicAuth()
		if err := request.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		gotService = request.PostForm.Get("MessagingServiceSid")
		gotTo = request.PostForm.Get("To")
		gotBody = request.PostForm.Get("Body")
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer server.Close()

	sender := NewTwilioSender(TwilioConfig{
		AccountSID:          "AC42",
		AuthToken:           "secret",
		MessagingServiceSID: "MG7",
		BaseURL:             server.URL + "/",
		HTTPClient:          server.Client(),
	})

	result, err := sender.Send(context.Background(), " +15551234567 ", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MessageID != "SM123" {
		t.Fatalf("expected message id SM123, got %q", result.MessageID)
	}
	if gotPath != "/2010-04-01/Accounts/AC42/Messages.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "AC42" || gotPass != "secret" {
		t.Fatalf("unexpected basic auth %q/%q", gotUser, gotPass)
	}
	if gotService != "MG7" || gotTo != "+15551234567" || gotBody != "hello" {
		t.Fatalf("unexpected form values service=%q to=%q body=%q", gotService, gotTo, gotBody)
	}
}

func TestTwilioSenderReportsGatewayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer server.Close()

	sender := NewTwilioSender(TwilioConfig{
		AccountSID:          "AC42",
		AuthToken:           "secret",
		MessagingServiceSID: "MG7",
		BaseURL:             server.URL,
		HTTPClient:          server.Client(),
	})

	_, err := sender.Send(context.Background(), "not-a-number", "hello")
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
}

func TestTwilioSenderWithoutCredentialsIsNotConfigured(t *testing.T) {
	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC42"})
	if sender.Configured() {
		t.Fatalf("expected sender to be unconfigured")
	}
	if _, err := sender.Send(context.Background(), "+15551234567", "hello"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTwilioSenderValidatesInput(t *testing.T) {
	sender := NewTwilioSender(TwilioConfig{AccountSID: "AC42", AuthToken: "secret", MessagingServiceSID: "MG7"})
	if _, err := sender.Send(context.Background(), "  ", "hello"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if _, err := sender.Send(context.Background(), "+15551234567", " "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestMessageCopy(t *testing.T) {
	if got := RestaurantDisplayName("joes-diner"); got != "Joes Diner" {
		t.Fatalf("unexpected display name %q", got)
	}
	join := JoinConfirmationMessage("Ada", "joes-diner", 3)
	want := "Hi Ada! You've been added to the waitlist at Joes Diner. You're #3 in line. We'll text you when your table is ready."
	if join != want {
		t.Fatalf("unexpected join message %q", join)
	}
	if got := TableReadyMessage("blue-plate-cafe"); got != "Your table at Blue Plate Cafe is ready! Please proceed to the host stand." {
		t.Fatalf("unexpected ready message %q", got)
	}
}
