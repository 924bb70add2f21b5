package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"gigchat/database/repository"
	"gigchat/models"
	"gigchat/services/events"
	"gigchat/services/session"
	"gigchat/services/storage"
	"gigchat/services/workflow"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sseHeartbeat = 25 * time.Second

// ChatHandler serves the conversation endpoints and the per-chat event stream.
type ChatHandler struct {
	Workflow workflow.WorkflowService
	Chats    repository.ChatRepository
	Events   events.Subscriber
	// Media is optional; without it upload URLs are unavailable.
	Media    storage.StorageService

	mu       sync.Mutex
	sessions map[string]*session.ClientSession
}

func NewChatHandler(wf workflow.WorkflowService, chats repository.ChatRepository, sub events.Subscriber) *ChatHandler {
	return &ChatHandler{
		Workflow: wf,
		Chats:    chats,
		Events:   sub,
		sessions: make(map[string]*session.ClientSession),
	}
}

// sessionFor returns the caller's client session, creating it on first use.
func (h *ChatHandler) sessionFor(c *gin.Context) *session.ClientSession {
	userID := currentUserID(c)
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[userID]
	if !ok {
		s = session.NewClientSession(userID, h.Workflow, zap.L())
		h.sessions[userID] = s
	}
	return s
}

// participantChat loads the chat and checks the caller may see it.
func (h *ChatHandler) participantChat(c *gin.Context) (*models.Chat, bool) {
	chatID := c.Param("chatID")
	chat, err := h.Chats.GetByID(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.JSONError(c, http.StatusNotFound, workflow.ErrNotFound.Code, "chat "+chatID+" not found", nil)
			return nil, false
		}
		respondError(c, err)
		return nil, false
	}
	if !chat.IsParticipant(currentUserID(c)) {
		utils.JSONError(c, http.StatusConflict, workflow.ErrNotOwner.Code, "You are not a participant of this chat", nil)
		return nil, false
	}
	return chat, true
}

// OpenServiceChatHandler opens (or reopens) the caller's service chat for a category.
func (h *ChatHandler) OpenServiceChatHandler(c *gin.Context) {
	var req struct {
		CategoryID string `json:"category_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	chat, err := h.Workflow.OpenServiceChat(c.Request.Context(), currentUserID(c), req.CategoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) InitializeChatHandler(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	initialized, err := h.Workflow.EnsureInitialized(c.Request.Context(), chat.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"initialized": initialized})
}

// GetMessagesHandler returns the caller's view of the chat with any
// unconfirmed local sends appended.
func (h *ChatHandler) GetMessagesHandler(c *gin.Context) {
	chatID := c.Param("chatID")
	msgs, err := h.Workflow.GetChatMessages(c.Request.Context(), chatID, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": h.sessionFor(c).Merge(chatID, msgs)})
}

type sendMessageRequest struct {
	BubbleType models.BubbleType `json:"bubble_type" binding:"required"`
	Content    string            `json:"content" binding:"max=4000"`
	Metadata   map[string]any    `json:"metadata"`
}

// SendMessageHandler sends through the caller's session so a failed send
// stays visible as a failed local message until retried or discarded.
func (h *ChatHandler) SendMessageHandler(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.sessionFor(c).Send(c.Request.Context(), c.Param("chatID"), req.BubbleType, req.Content, req.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *ChatHandler) RetryMessageHandler(c *gin.Context) {
	res, err := h.sessionFor(c).Retry(c.Request.Context(), c.Param("correlationID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *ChatHandler) DiscardMessageHandler(c *gin.Context) {
	h.sessionFor(c).Discard(c.Param("correlationID"))
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) QuickReplyHandler(c *gin.Context) {
	var req struct {
		PromptID string `json:"prompt_id" binding:"required"`
		Reply    string `json:"reply" binding:"required,oneof=yes no"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Workflow.HandleQuickReply(c.Request.Context(), c.Param("chatID"), currentUserID(c), req.PromptID, req.Reply)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) SelectDateHandler(c *gin.Context) {
	var req struct {
		Date string              `json:"date" binding:"required,datetime=2006-01-02"`
		Job  workflow.JobRequest `json:"job"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Workflow.SelectDate(c.Request.Context(), c.Param("chatID"), currentUserID(c), req.Date, req.Job)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SelectPhotosHandler accepts zero or more photo URLs; an empty list skips the step.
func (h *ChatHandler) SelectPhotosHandler(c *gin.Context) {
	var req struct {
		URLs []string            `json:"urls" binding:"max=10,dive,url"`
		Job  workflow.JobRequest `json:"job"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.Workflow.SelectPhotos(c.Request.Context(), c.Param("chatID"), currentUserID(c), req.URLs, req.Job)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) CreateJobHandler(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	if chat.CustomerID != currentUserID(c) {
		utils.JSONError(c, http.StatusConflict, workflow.ErrNotOwner.Code, "Only the customer can post the job", nil)
		return
	}
	var req workflow.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	job, err := h.Workflow.CreateJobFromChat(c.Request.Context(), chat.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *ChatHandler) MarkReadHandler(c *gin.Context) {
	n, err := h.Workflow.MarkMessagesRead(c.Request.Context(), c.Param("chatID"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// EventsHandler streams the chat's events visible to the caller as
// Server-Sent Events until the client disconnects.
func (h *ChatHandler) EventsHandler(c *gin.Context) {
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	out := make(chan events.Event, 16)
	go h.sessionFor(c).Watch(ctx, h.Events, chat.ID, out)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt := <-out:
			c.SSEvent(evt.Type, evt)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
	getLogger(c).Debug("Event stream closed", zap.String("chatID", chat.ID))
}

// UploadURLHandler issues a signed URL the client uploads a voice note or
// photo to before sending the message that references it.
func (h *ChatHandler) UploadURLHandler(c *gin.Context) {
	if h.Media == nil {
		utils.JSONError(c, http.StatusServiceUnavailable, "MEDIA_DISABLED", "Media uploads are not configured", nil)
		return
	}
	chat, ok := h.participantChat(c)
	if !ok {
		return
	}
	var req struct {
		Kind        string `json:"kind" binding:"required,oneof=voice photo"`
		ContentType string `json:"content_type" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ticket, err := h.Media.UploadURL(c.Request.Context(), chat.ID, req.Kind, req.ContentType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedMedia) {
			utils.JSONError(c, http.StatusBadRequest, workflow.ErrValidation.Code, err.Error(), nil)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}
