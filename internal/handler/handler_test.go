package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/freeeve/parley/internal/auth"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/model"
	"github.com/freeeve/parley/internal/repository"
	"github.com/freeeve/parley/pkg/diplomacy"
)

type fakeLive map[string]*model.LivePhase

func (f fakeLive) GetPhase(_ context.Context, id string) (*model.LivePhase, error) {
	return f[id], nil
}

type fakeArchive map[string]*history.Document

func (f fakeArchive) LoadGame(_ context.Context, id string) (*history.Document, error) {
	doc, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (f fakeArchive) ListGames(context.Context) ([]model.GameSummary, error) {
	var out []model.GameSummary
	for _, id := range []string{"done-1", "done-2"} {
		if doc, ok := f[id]; ok {
			out = append(out, model.GameSummary{ID: doc.ID, Map: doc.Map, Status: "finished", Phases: len(doc.Phases)})
		}
	}
	return out, nil
}

func testSources() (fakeLive, fakeArchive) {
	live := fakeLive{
		"running-1": {GameID: "running-1", Phase: "F1902M", State: diplomacy.Snapshot{Name: "F1902M"}},
	}
	archive := fakeArchive{
		"done-1": {ID: "done-1", Map: "standard", Winners: []diplomacy.Power{diplomacy.Turkey}, Phases: []history.PhaseRecord{{Name: "S1901M", Year: 1901}}},
		"done-2": {ID: "done-2", Map: "standard"},
	}
	return live, archive
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewRouter(RouterConfig{})
	if rec := get(t, h, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetGameRunning(t *testing.T) {
	live, archive := testSources()
	h := NewRouter(RouterConfig{Live: live, Archive: archive})

	rec := get(t, h, "/games/running-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view GameView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != "running" || view.Live == nil || view.Live.Phase != "F1902M" {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestGetGameFinished(t *testing.T) {
	live, archive := testSources()
	h := NewRouter(RouterConfig{Live: live, Archive: archive})

	rec := get(t, h, "/games/done-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var view GameView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Status != "finished" || view.Phases != 1 || len(view.Winners) != 1 || view.Winners[0] != "TURKEY" {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestGetGameNotFound(t *testing.T) {
	live, archive := testSources()
	h := NewRouter(RouterConfig{Live: live, Archive: archive})
	if rec := get(t, h, "/games/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := get(t, NewRouter(RouterConfig{}), "/games/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without sources, got %d", rec.Code)
	}
}

func TestGetDocument(t *testing.T) {
	_, archive := testSources()
	h := NewRouter(RouterConfig{Archive: archive})

	rec := get(t, h, "/games/done-1/document", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc, err := history.DecodeDocument(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.ID != "done-1" || len(doc.Phases) != 1 {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestTokenScoping(t *testing.T) {
	live, archive := testSources()
	mgr := auth.NewJWTManager("secret")
	h := NewRouter(RouterConfig{Live: live, Archive: archive, JWT: mgr})
	token, _ := mgr.GenerateViewerToken("alice", "done-1")

	if rec := get(t, h, "/games/done-1", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := get(t, h, "/games/done-1", token); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rec.Code)
	}
	if rec := get(t, h, "/games/running-1", token); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another game, got %d", rec.Code)
	}
	if rec := get(t, h, "/games/done-2/document", token); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another document, got %d", rec.Code)
	}

	rec := get(t, h, "/games", token)
	var games []model.GameSummary
	json.Unmarshal(rec.Body.Bytes(), &games)
	if len(games) != 1 || games[0].ID != "done-1" {
		t.Errorf("expected only done-1 listed, got %+v", games)
	}
}

func TestListGamesEmpty(t *testing.T) {
	rec := get(t, NewRouter(RouterConfig{}), "/games", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}
}

// readEvents reads events until want arrives or the deadline passes.
func readEvents(t *testing.T, conn *websocket.Conn, want string) []WSEvent {
	t.Helper()
	var seen []WSEvent
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev WSEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read while waiting for %s: %v (seen %+v)", want, err, seen)
		}
		seen = append(seen, ev)
		if ev.Type == want {
			return seen
		}
	}
}

func TestWebSocketFeed(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewRouter(RouterConfig{Hub: hub}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?game=g1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readEvents(t, conn, EventSubscribed)
	if hub.GameSubscriberCount("g1") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.GameSubscriberCount("g1"))
	}

	hub.BroadcastGameEvent("g1", EventPhaseResolved, map[string]string{"phase": "S1901M"})
	seen := readEvents(t, conn, EventPhaseResolved)
	last := seen[len(seen)-1]
	if last.GameID != "g1" {
		t.Errorf("expected g1, got %s", last.GameID)
	}
}

func TestWebSocketReplaysBoardToLateViewer(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewRouter(RouterConfig{Hub: hub}))
	defer srv.Close()

	hub.BroadcastGameEvent("g1", EventPhaseChanged, map[string]string{"phase": "F1901M"})
	hub.BroadcastGameEvent("g1", EventMessage, map[string]string{"body": "hello"})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?game=g1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	seen := readEvents(t, conn, EventPhaseChanged)
	for _, ev := range seen {
		if ev.Type == EventMessage {
			t.Errorf("messages sent before subscribing should not be replayed: %+v", seen)
		}
	}
	data, _ := seen[len(seen)-1].Data.(map[string]any)
	if data["phase"] != "F1901M" {
		t.Errorf("expected the F1901M board, got %+v", seen[len(seen)-1])
	}
}

func TestWebSocketTokenLimitsSubscriptions(t *testing.T) {
	hub := NewHub()
	mgr := auth.NewJWTManager("secret")
	srv := httptest.NewServer(NewRouter(RouterConfig{Hub: hub, JWT: mgr}))
	defer srv.Close()
	token, _ := mgr.GenerateViewerToken("alice", "g1")
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil {
		t.Fatal("expected dial without token to fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readEvents(t, conn, EventConnected)

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", GameID: "g2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	seen := readEvents(t, conn, EventError)
	if seen[len(seen)-1].GameID != "g2" {
		t.Errorf("expected an error for g2, got %+v", seen)
	}
	if hub.GameSubscriberCount("g2") != 0 {
		t.Error("g2 should have no subscribers")
	}
}
