package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"learnspace-service/internal/app"
	"learnspace-service/internal/domain"
)

// Handler exposes the record stores and the conversation/quiz use cases over
// the REST surface the web client already speaks. Paths are part of the
// compatibility contract and must not change.
type Handler struct {
	svc           *app.Service
	chats         app.ChatStore
	spaces        app.SpaceStore
	defaultUserID string
	log           *zap.Logger
}

func NewHandler(svc *app.Service, chats app.ChatStore, spaces app.SpaceStore, defaultUserID string, log *zap.Logger) *Handler {
	return &Handler{
		svc:           svc,
		chats:         chats,
		spaces:        spaces,
		defaultUserID: defaultUserID,
		log:           log,
	}
}

// Router wires every route. Literal routes register before their variable
// siblings so /api/spaces/sync never matches {spaceId}.
func (h *Handler) Router(events *EventsHandler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/chat", h.Chat).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/load", h.LoadChat).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/save", h.SaveChat).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/delete", h.DeleteChat).Methods(http.MethodDelete)

	r.HandleFunc("/api/spaces", h.ListSpaces).Methods(http.MethodGet)
	r.HandleFunc("/api/spaces", h.CreateSpace).Methods(http.MethodPost)
	r.HandleFunc("/api/spaces/sync", h.SyncSpaces).Methods(http.MethodPost)
	r.HandleFunc("/api/spaces/{spaceId}", h.UpdateSpace).Methods(http.MethodPatch)
	r.HandleFunc("/api/spaces/{spaceId}", h.DeleteSpace).Methods(http.MethodDelete)
	r.HandleFunc("/api/spaces/{spaceId}/quizzes", h.AppendQuiz).Methods(http.MethodPost)
	r.HandleFunc("/api/spaces/{spaceId}/quizzes/{quizId}/retake", h.RetakeQuiz).Methods(http.MethodPost)

	r.HandleFunc("/api/quiz/generate", h.GenerateQuiz).Methods(http.MethodPost)
	r.HandleFunc("/api/quiz/answer", h.AnswerQuiz).Methods(http.MethodPost)

	if events != nil {
		r.HandleFunc("/api/events", events.ServeWS).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) userID(fallback string) string {
	if fallback != "" {
		return fallback
	}
	return h.defaultUserID
}

// Chat runs one conversation turn: optimistic user append, inference call,
// assistant append, async persistence. The response carries only the
// generated text, matching the original wire contract.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input  string `json:"input"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	assistant, err := h.svc.Submit(r.Context(), h.userID(req.UserID), req.Input)
	if errors.Is(err, domain.ErrEmptyInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Input cannot be empty"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": assistant.Content})
}

// LoadChat returns one chat (missing → empty messages) or every chat sorted
// newest first. A listing failure degrades to an empty list plus a
// notification rather than an error page.
func (h *Handler) LoadChat(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	chatID := r.URL.Query().Get("chatId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "User ID is required"})
		return
	}

	if chatID != "" {
		chat, err := h.chats.Load(r.Context(), userID, chatID)
		if errors.Is(err, domain.ErrChatNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"messages": []domain.Message{}})
			return
		}
		if err != nil {
			h.log.Warn("chat load failed", zap.String("chatId", chatID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load chat"})
			return
		}
		writeJSON(w, http.StatusOK, chat)
		return
	}

	chats, err := h.chats.LoadAll(r.Context(), userID)
	if err != nil {
		h.log.Warn("chat listing failed", zap.String("userId", userID), zap.Error(err))
		h.svc.Notifier().Error("Failed to load chat history")
		chats = []domain.ChatSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *Handler) SaveChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string           `json:"userId"`
		ChatID   string           `json:"chatId"`
		Messages []domain.Message `json:"messages"`
		Title    string           `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if req.UserID == "" || req.ChatID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "User ID and Chat ID are required"})
		return
	}

	chat, err := h.chats.Save(r.Context(), req.UserID, req.ChatID, req.Messages, req.Title)
	if err != nil {
		h.log.Warn("chat save failed", zap.String("chatId", req.ChatID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save chat"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chat": chat})
}

// DeleteChat removes the chat; deleting the active chat reseeds a fresh one
// so the session is never left without an active chat id.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	chatID := r.URL.Query().Get("chatId")
	if userID == "" || chatID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "User ID and Chat ID are required"})
		return
	}
	if err := h.svc.DeleteChat(r.Context(), userID, chatID); err != nil {
		h.log.Warn("chat delete failed", zap.String("chatId", chatID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to delete chat"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.spaces.ListAll(r.Context())
	if err != nil {
		h.log.Warn("space listing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch spaces"})
		return
	}
	writeJSON(w, http.StatusOK, spaces)
}

func (h *Handler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var space domain.Space
	if err := json.NewDecoder(r.Body).Decode(&space); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	created, err := h.spaces.Create(r.Context(), space)
	if err != nil {
		h.log.Warn("space create failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to create space"})
		return
	}
	writeJSON(w, http.StatusOK, created)
}

func (h *Handler) UpdateSpace(w http.ResponseWriter, r *http.Request) {
	spaceID := mux.Vars(r)["spaceId"]
	var patch domain.SpacePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.spaces.Update(r.Context(), spaceID, patch); err != nil {
		h.log.Warn("space update failed", zap.String("spaceId", spaceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to update space"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	spaceID := mux.Vars(r)["spaceId"]
	if err := h.spaces.Delete(r.Context(), spaceID); err != nil {
		h.log.Warn("space delete failed", zap.String("spaceId", spaceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to delete space"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) AppendQuiz(w http.ResponseWriter, r *http.Request) {
	spaceID := mux.Vars(r)["spaceId"]
	var entry domain.QuizHistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.spaces.AppendQuiz(r.Context(), spaceID, entry); err != nil {
		h.log.Warn("quiz append failed", zap.String("spaceId", spaceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save quiz"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) SyncSpaces(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Spaces []domain.Space `json:"spaces"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.spaces.Sync(r.Context(), req.Spaces); err != nil {
		h.log.Warn("space sync failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to sync spaces"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string           `json:"userId"`
		Scope     domain.QuizScope `json:"scope"`
		MessageID string           `json:"messageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if req.Scope != domain.ScopeMessage && req.Scope != domain.ScopeSession {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "scope must be 'message' or 'session'"})
		return
	}
	if req.Scope == domain.ScopeMessage && req.MessageID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "messageId is required for message scope"})
		return
	}

	carrier, err := h.svc.GenerateQuiz(r.Context(), h.userID(req.UserID), req.Scope, req.MessageID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, carrier)
	case errors.Is(err, domain.ErrQuizNotEligible), errors.Is(err, domain.ErrQuizExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrChatNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.IsParseError(err):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (h *Handler) AnswerQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		MessageID string `json:"messageId"`
		Answer    int    `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if req.MessageID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "messageId is required"})
		return
	}

	state, err := h.svc.SubmitAnswer(r.Context(), h.userID(req.UserID), req.MessageID, req.Answer)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, state)
	case errors.Is(err, domain.ErrQuizNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrQuizComplete),
		errors.Is(err, domain.ErrQuestionAnswered),
		errors.Is(err, domain.ErrAnswerOutOfRange):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (h *Handler) RetakeQuiz(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req struct {
		UserID string `json:"userId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	carrier, err := h.svc.Retake(r.Context(), h.userID(req.UserID), vars["spaceId"], vars["quizId"])
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, carrier)
	case errors.Is(err, domain.ErrQuizNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
