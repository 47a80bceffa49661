package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/proto"
	"github.com/vovakirdan/educhat/internal/store"
)

// HistoryHandlers serves stored room history over plain HTTP.
type HistoryHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(st store.MessageStore, logger *zerolog.Logger) *HistoryHandlers {
	return &HistoryHandlers{
		store: st,
		log:   logger,
	}
}

// ListMessages returns the most recent messages of a room, oldest first.
// GET /api/messages?room=<room>&limit=<n>
func (h *HistoryHandlers) ListMessages(c *gin.Context) {
	room := store.RoomOrDefault(c.Query("room"))

	limit := store.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	limit = store.ClampLimit(limit)

	msgs, err := h.store.ListRecent(c.Request.Context(), room, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, proto.Message{
			ID:         m.ID,
			Room:       m.Room,
			UID:        m.UID,
			SenderName: m.SenderName,
			Text:       m.Text,
			CreatedAt:  m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
