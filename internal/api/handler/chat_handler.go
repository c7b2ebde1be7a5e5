package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vetclinic/portal/internal/api/metrics"
	"github.com/vetclinic/portal/internal/core/domain"
	"github.com/vetclinic/portal/internal/core/ports"
)

const heartbeatInterval = 15 * time.Second

type ChatHandler struct {
	chat      ports.ChatService
	log       zerolog.Logger
	heartbeat time.Duration
}

func NewChatHandler(chat ports.ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log, heartbeat: heartbeatInterval}
}

type sendMessageRequest struct {
	ClientMessageID string `json:"client_message_id" validate:"required,max=64"`
	Text            string `json:"text" validate:"required,max=4000"`
}

// History lists a conversation, oldest message first.
//
// @Summary      Conversation history
// @Tags         chat
// @Produce      json
// @Param        conversationId  path      string  true   "Consultation id"
// @Param        limit           query     int     false  "Max messages (default 100, max 500)"
// @Success      200             {array}   domain.ChatMessage
// @Failure      401             {object}  map[string]string
// @Router       /chat/{conversationId}/messages [get]
func (h *ChatHandler) History(c echo.Context) error {
	var limit int64
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
		limit = n
	}
	msgs, err := h.chat.History(c.Request().Context(), c.Param("conversationId"), limit)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// Send accepts a message for delivery. Delivery is asynchronous; the message
// shows up on the stream once the clinic API has stored it.
//
// @Summary      Send a chat message
// @Tags         chat
// @Accept       json
// @Produce      json
// @Param        conversationId  path      string              true  "Consultation id"
// @Param        body            body      sendMessageRequest  true  "Message"
// @Success      202             {object}  map[string]string
// @Failure      400             {object}  map[string]string
// @Failure      409             {object}  map[string]string
// @Router       /chat/{conversationId}/messages [post]
func (h *ChatHandler) Send(c echo.Context) error {
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := ctxSession(c)
	if err != nil {
		return err
	}

	err = h.chat.Send(c.Request().Context(), sess.Identity(), sess.Token(), ports.SendMessageInput{
		ConversationID:  c.Param("conversationId"),
		ClientMessageID: req.ClientMessageID,
		Text:            req.Text,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateMessage):
		metrics.ChatMessagesTotal.WithLabelValues("duplicate").Inc()
		return err
	case err != nil:
		return err
	}
	metrics.ChatMessagesTotal.WithLabelValues("queued").Inc()
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

// Stream pushes new messages of a conversation as server-sent events until
// the client disconnects.
//
// @Summary      Live conversation feed
// @Tags         chat
// @Produce      text/event-stream
// @Param        conversationId  path  string  true  "Consultation id"
// @Success      200
// @Router       /chat/{conversationId}/stream [get]
func (h *ChatHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	conversationID := c.Param("conversationId")

	feed, err := h.chat.Watch(ctx, conversationID)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case msg, ok := <-feed:
			if !ok {
				return nil
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.log.Error().Err(err).Str("conversation", conversationID).Msg("encode chat event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", msg.ID, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
