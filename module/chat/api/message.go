package api

import (
	"net/http"
	"strings"

	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"
	"PPRealtime/service/chat/handlers"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// GetMessages returns every message of a conversation the caller takes part
// in, oldest first.
func (s *Server) GetMessages(c *gin.Context) error {
	ctx := c.Request.Context()
	convID := strings.TrimSpace(c.Param("conversationId"))
	if convID == "" {
		return errs.ErrValidation.WrapMsg("conversationId is required")
	}
	conv, err := s.store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	uid := midsec.UserID(c)
	if !conv.HasParticipant(uid) {
		return errs.ErrForbidden.WrapMsg("not a participant", "conversationId", convID, "userId", uid)
	}
	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}
	users, err := s.store.GetUsers(ctx, conv.Participants)
	if err != nil {
		return err
	}
	out := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Populate(users[m.Sender]))
	}
	c.JSON(http.StatusOK, out)
	return nil
}

// PostMessage sends a message without a realtime connection. It takes the same
// path as the sendMessage event, so connected clients get newMessage and
// conversationUpdated as usual.
func (s *Server) PostMessage(c *gin.Context) error {
	var req handlers.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrValidation.Wrap(err)
	}
	rep, err := s.sender.PostMessage(c.Request.Context(), midsec.UserID(c), req)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, rep.Message)
	return nil
}
