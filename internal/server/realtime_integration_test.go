package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type streamEvent struct {
	name string
	data string
}

// readStreamEvent returns the next named event, skipping heartbeats.
func readStreamEvent(t *testing.T, reader *bufio.Reader, timeout time.Duration) streamEvent {
	t.Helper()
	type readResult struct {
		line string
		err  error
	}
	deadline := time.After(timeout)
	current := streamEvent{}
	for {
		resultCh := make(chan readResult, 1)
		go func() {
			line, err := reader.ReadString('\n')
			resultCh <- readResult{line: line, err: err}
		}()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for stream event")
		case result := <-resultCh:
			if result.err != nil {
				t.Fatalf("failed to read stream: %v", result.err)
			}
			line := strings.TrimRight(result.line, "\r\n")
			switch {
			case strings.HasPrefix(line, "event:"):
				current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				current.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && current.name != "":
				if current.name != eventHeartbeat {
					return current
				}
				current = streamEvent{}
			}
		}
	}
}

func openEventStream(t *testing.T, url string) *bufio.Reader {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", response.StatusCode)
	}
	if !strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", response.Header.Get("Content-Type"))
	}
	return bufio.NewReader(response.Body)
}

func postJSON(t *testing.T, url string, body string, token string) *http.Response {
	t.Helper()
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	return response
}

func TestHostStreamPushesBoardChanges(t *testing.T) {
	testServer := newTestServer(t, nil)
	server := httptest.NewServer(testServer.handler)
	t.Cleanup(server.Close)

	token := validHostToken(t)
	reader := openEventStream(t, server.URL+"/restaurants/joes-diner/stream?access_token="+token)

	initial := readStreamEvent(t, reader, 5*time.Second)
	if initial.name != eventBoard {
		t.Fatalf("expected initial board event, got %q", initial.name)
	}
	var snapshot boardPayload
	if err := json.Unmarshal([]byte(initial.data), &snapshot); err != nil {
		t.Fatalf("failed to decode board: %v", err)
	}
	if len(snapshot.Parties) != 0 {
		t.Fatalf("expected empty board, got %d parties", len(snapshot.Parties))
	}

	joinResponse := postJSON(t, server.URL+"/restaurants/joes-diner/join", `{"name":"Ada","size":2}`, "")
	if joinResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected join status: %d", joinResponse.StatusCode)
	}
	// A change in another restaurant must not reach this stream.
	otherResponse := postJSON(t, server.URL+"/restaurants/other-place/join", `{"name":"Grace","size":2}`, "")
	if otherResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected join status: %d", otherResponse.StatusCode)
	}

	update := readStreamEvent(t, reader, 5*time.Second)
	if update.name != eventBoard {
		t.Fatalf("expected board event, got %q", update.name)
	}
	var board boardPayload
	if err := json.Unmarshal([]byte(update.data), &board); err != nil {
		t.Fatalf("failed to decode board: %v", err)
	}
	if len(board.Parties) != 1 || board.Parties[0].Name != "Ada" || board.Parties[0].Position != 1 {
		t.Fatalf("unexpected board after join: %+v", board)
	}
}

func TestHostStreamRequiresSession(t *testing.T) {
	testServer := newTestServer(t, nil)
	server := httptest.NewServer(testServer.handler)
	t.Cleanup(server.Close)

	response, err := http.Get(server.URL + "/restaurants/joes-diner/stream")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}
}

func TestGuestStreamFollowsPartyLifecycle(t *testing.T) {
	testServer := newTestServer(t, nil)
	server := httptest.NewServer(testServer.handler)
	t.Cleanup(server.Close)
	token := validHostToken(t)

	firstJoin := postJSON(t, server.URL+"/restaurants/joes-diner/join", `{"name":"Ada","size":2}`, "")
	var first guestStatusPayload
	if err := json.NewDecoder(firstJoin.Body).Decode(&first); err != nil {
		t.Fatalf("failed to decode join: %v", err)
	}
	secondJoin := postJSON(t, server.URL+"/restaurants/joes-diner/join", `{"name":"Grace","size":2}`, "")
	var second guestStatusPayload
	if err := json.NewDecoder(secondJoin.Body).Decode(&second); err != nil {
		t.Fatalf("failed to decode join: %v", err)
	}

	reader := openEventStream(t, server.URL+"/restaurants/joes-diner/parties/"+second.ID+"/stream")
	initial := readStreamEvent(t, reader, 5*time.Second)
	var status guestStatusPayload
	if err := json.Unmarshal([]byte(initial.data), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if initial.name != eventStatus || status.Position != 2 {
		t.Fatalf("expected position 2, got event %q %+v", initial.name, status)
	}

	seatResponse := postJSON(t, server.URL+"/restaurants/joes-diner/parties/"+first.ID+"/status", `{"status":"no_show"}`, token)
	if seatResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected transition status: %d", seatResponse.StatusCode)
	}
	moved := readStreamEvent(t, reader, 5*time.Second)
	if err := json.Unmarshal([]byte(moved.data), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Position != 1 {
		t.Fatalf("expected position 1 after the party ahead left, got %+v", status)
	}

	deleteRequest, err := http.NewRequest(http.MethodDelete, server.URL+"/restaurants/joes-diner/parties/"+second.ID, http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct delete request: %v", err)
	}
	deleteRequest.Header.Set("Authorization", "Bearer "+token)
	deleteResponse, err := http.DefaultClient.Do(deleteRequest)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	_ = deleteResponse.Body.Close()

	removed := readStreamEvent(t, reader, 5*time.Second)
	if removed.name != eventRemoved {
		t.Fatalf("expected removed event, got %q", removed.name)
	}
}

func TestKioskSocketStreamsQueueSummary(t *testing.T) {
	testServer := newTestServer(t, nil)
	server := httptest.NewServer(testServer.handler)
	t.Cleanup(server.Close)

	socketURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/restaurants/joes-diner/kiosk/ws"
	conn, _, err := websocket.DefaultDialer.Dial(socketURL, nil)
	if err != nil {
		t.Fatalf("failed to dial kiosk socket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	type summaryMessage struct {
		Event string              `json:"event"`
		Data  queueSummaryPayload `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var message summaryMessage
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("failed to read initial summary: %v", err)
	}
	if message.Event != eventSummary || message.Data.WaitingCount != 0 {
		t.Fatalf("unexpected initial summary: %+v", message)
	}

	joinResponse := postJSON(t, server.URL+"/restaurants/joes-diner/join", `{"name":"Ada","size":2}`, "")
	if joinResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected join status: %d", joinResponse.StatusCode)
	}

	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("failed to read summary update: %v", err)
	}
	if message.Data.WaitingCount != 1 || message.Data.NextEstimatedWaitMinutes != 20 {
		t.Fatalf("unexpected summary after join: %+v", message.Data)
	}
}
