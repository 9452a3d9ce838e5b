package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"learnspace-service/internal/app"
	"learnspace-service/internal/domain"
	"learnspace-service/internal/infra/memory"
)

// stubLLM replays canned replies in order.
type stubLLM struct {
	mu      sync.Mutex
	replies []string
}

func (m *stubLLM) Generate(_ context.Context, _ []domain.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return "ok", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func newTestServer(t *testing.T, replies ...string) (*httptest.Server, *app.Notifier, *memory.SpaceStore) {
	t.Helper()
	log := zap.NewNop()
	chats := memory.NewChatStore()
	spaces := memory.NewSpaceStore()
	notifier := app.NewNotifier()
	svc := app.NewService(chats, spaces, &stubLLM{replies: replies}, notifier, log,
		app.WithSynchronousPersistence())

	handler := NewHandler(svc, chats, spaces, "guest", log)
	server := httptest.NewServer(handler.Router(NewEventsHandler(notifier, log)))
	t.Cleanup(server.Close)
	return server, notifier, spaces
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestChatEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t, "The mitochondria is the powerhouse of the cell.")

	var ok map[string]string
	status := doJSON(t, http.MethodPost, server.URL+"/api/chat", map[string]string{"input": "What is a mitochondria?"}, &ok)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if ok["text"] != "The mitochondria is the powerhouse of the cell." {
		t.Fatalf("unexpected reply payload: %+v", ok)
	}

	var bad errorResponse
	status = doJSON(t, http.MethodPost, server.URL+"/api/chat", map[string]string{"input": "   "}, &bad)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty input, got %d", status)
	}
	if bad.Error != "Input cannot be empty" {
		t.Fatalf("unexpected error message: %q", bad.Error)
	}
}

func TestChatSaveLoadDelete(t *testing.T) {
	server, _, _ := newTestServer(t)

	messages := []domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "Explain the water cycle"},
		{ID: "m2", Role: domain.RoleAssistant, Content: "Evaporation, condensation, precipitation."},
	}

	var saved struct {
		Success bool               `json:"success"`
		Chat    domain.ChatSession `json:"chat"`
	}
	status := doJSON(t, http.MethodPost, server.URL+"/api/chat/save", map[string]any{
		"userId": "guest", "chatId": "c1", "messages": messages,
	}, &saved)
	if status != http.StatusOK || !saved.Success {
		t.Fatalf("save failed: status=%d %+v", status, saved)
	}
	if saved.Chat.Title != "Explain the water cycle" {
		t.Fatalf("expected derived title, got %q", saved.Chat.Title)
	}

	status = doJSON(t, http.MethodPost, server.URL+"/api/chat/save", map[string]any{"chatId": "c1"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", status)
	}

	var chat domain.ChatSession
	status = doJSON(t, http.MethodGet, server.URL+"/api/chat/load?userId=guest&chatId=c1", nil, &chat)
	if status != http.StatusOK || len(chat.Messages) != 2 {
		t.Fatalf("load single: status=%d %+v", status, chat)
	}

	var missing struct {
		Messages []domain.Message `json:"messages"`
	}
	status = doJSON(t, http.MethodGet, server.URL+"/api/chat/load?userId=guest&chatId=nope", nil, &missing)
	if status != http.StatusOK || len(missing.Messages) != 0 {
		t.Fatalf("missing chat should be an empty transcript: status=%d %+v", status, missing)
	}

	var listing struct {
		Chats []domain.ChatSession `json:"chats"`
	}
	status = doJSON(t, http.MethodGet, server.URL+"/api/chat/load?userId=guest", nil, &listing)
	if status != http.StatusOK || len(listing.Chats) != 1 {
		t.Fatalf("listing: status=%d %+v", status, listing)
	}

	status = doJSON(t, http.MethodGet, server.URL+"/api/chat/load", nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", status)
	}

	status = doJSON(t, http.MethodDelete, server.URL+"/api/chat/delete?userId=guest&chatId=c1", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: got %d", status)
	}
	status = doJSON(t, http.MethodGet, server.URL+"/api/chat/load?userId=guest", nil, &listing)
	if status != http.StatusOK || len(listing.Chats) != 0 {
		t.Fatalf("chat survived delete: %+v", listing)
	}

	status = doJSON(t, http.MethodDelete, server.URL+"/api/chat/delete?userId=guest", nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without chatId, got %d", status)
	}
}

func TestSpacesEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t)

	var created domain.Space
	status := doJSON(t, http.MethodPost, server.URL+"/api/spaces", domain.Space{ID: "s1", Name: "Physics"}, &created)
	if status != http.StatusOK || created.ID != "s1" {
		t.Fatalf("create: status=%d %+v", status, created)
	}

	var listing []domain.Space
	status = doJSON(t, http.MethodGet, server.URL+"/api/spaces", nil, &listing)
	if status != http.StatusOK || len(listing) != 1 {
		t.Fatalf("list: status=%d %+v", status, listing)
	}

	status = doJSON(t, http.MethodPatch, server.URL+"/api/spaces/s1", map[string]string{"name": "Quantum Physics"}, nil)
	if status != http.StatusOK {
		t.Fatalf("patch: got %d", status)
	}
	doJSON(t, http.MethodGet, server.URL+"/api/spaces", nil, &listing)
	if listing[0].Name != "Quantum Physics" {
		t.Fatalf("patch not applied: %+v", listing[0])
	}

	// Append the same history entry twice; the list stays unique by id.
	entry := domain.QuizHistoryEntry{ID: "q1", Score: 1, Type: domain.ScopeSession}
	for i := 0; i < 2; i++ {
		entry.Score = i + 1
		status = doJSON(t, http.MethodPost, server.URL+"/api/spaces/s1/quizzes", entry, nil)
		if status != http.StatusOK {
			t.Fatalf("append quiz: got %d", status)
		}
	}
	doJSON(t, http.MethodGet, server.URL+"/api/spaces", nil, &listing)
	if len(listing[0].Quizzes) != 1 || listing[0].Quizzes[0].Score != 2 {
		t.Fatalf("quiz history should dedup by id: %+v", listing[0].Quizzes)
	}

	// Wholesale sync replaces the collection.
	status = doJSON(t, http.MethodPost, server.URL+"/api/spaces/sync", map[string]any{
		"spaces": []domain.Space{{ID: "s2", Name: "History"}},
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("sync: got %d", status)
	}
	doJSON(t, http.MethodGet, server.URL+"/api/spaces", nil, &listing)
	if len(listing) != 1 || listing[0].ID != "s2" {
		t.Fatalf("sync should overwrite: %+v", listing)
	}

	status = doJSON(t, http.MethodDelete, server.URL+"/api/spaces/s2", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: got %d", status)
	}
	doJSON(t, http.MethodGet, server.URL+"/api/spaces", nil, &listing)
	if len(listing) != 0 {
		t.Fatalf("space survived delete: %+v", listing)
	}
}

func quizReply(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"question":"Q%d","options":["a","b","c","d"],"correctAnswer":0,"explanation":"e"}`, i+1)
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestQuizEndpoints(t *testing.T) {
	server, _, _ := newTestServer(t, "Plants convert light into energy.", quizReply(2))

	// Build up a conversation first.
	status := doJSON(t, http.MethodPost, server.URL+"/api/chat", map[string]string{"input": "How does photosynthesis work?"}, nil)
	if status != http.StatusOK {
		t.Fatalf("chat: got %d", status)
	}

	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/generate", map[string]string{"scope": "week"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown scope should 400, got %d", status)
	}
	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/generate", map[string]string{"scope": "message"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("message scope without messageId should 400, got %d", status)
	}

	var carrier domain.Message
	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/generate", map[string]string{"scope": "session"}, &carrier)
	if status != http.StatusOK {
		t.Fatalf("generate: got %d", status)
	}
	if carrier.Quiz == nil || len(carrier.Quiz.Questions) != 2 {
		t.Fatalf("unexpected carrier: %+v", carrier)
	}

	var state domain.QuizState
	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/answer", map[string]any{
		"messageId": carrier.ID, "answer": 0,
	}, &state)
	if status != http.StatusOK || state.CurrentQuestion != 1 {
		t.Fatalf("first answer: status=%d %+v", status, state)
	}

	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/answer", map[string]any{
		"messageId": carrier.ID, "answer": 3,
	}, &state)
	if status != http.StatusOK || !state.IsComplete || state.Score == nil || *state.Score != 1 {
		t.Fatalf("completion: status=%d %+v", status, state)
	}

	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/answer", map[string]any{
		"messageId": "missing", "answer": 0,
	}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown quiz should 404, got %d", status)
	}
	status = doJSON(t, http.MethodPost, server.URL+"/api/quiz/answer", map[string]any{"answer": 0}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("missing messageId should 400, got %d", status)
	}

	status = doJSON(t, http.MethodPost, server.URL+"/api/spaces/s1/quizzes/q1/retake", nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("retake of unknown quiz should 404, got %d", status)
	}
}

func TestQuizGenerateParseFailure(t *testing.T) {
	server, _, _ := newTestServer(t, "A reply.", "I'd rather not make a quiz.")

	doJSON(t, http.MethodPost, server.URL+"/api/chat", map[string]string{"input": "hello"}, nil)

	status := doJSON(t, http.MethodPost, server.URL+"/api/quiz/generate", map[string]string{"scope": "session"}, nil)
	if status != http.StatusBadGateway {
		t.Fatalf("unparsable model output should 502, got %d", status)
	}
}

func TestHealthz(t *testing.T) {
	server, _, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
