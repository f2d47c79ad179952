package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

type createConversationReq struct {
	RecipientID string `json:"recipientId"`
}

// GetUserConversations lists the caller's conversations, most recently active
// first, with participants and last message populated.
func (s *Server) GetUserConversations(c *gin.Context) error {
	ctx := c.Request.Context()
	uid := midsec.UserID(c)
	convs, err := s.store.ListConversations(ctx, uid)
	if err != nil {
		return err
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })

	userIDs := make([]string, 0, 2*len(convs))
	lastMsgs := make(map[string]*model.Message, len(convs))
	for _, conv := range convs {
		userIDs = append(userIDs, conv.Participants...)
		if conv.LastMessage == "" {
			continue
		}
		msg, err := s.store.GetMessage(ctx, conv.LastMessage)
		switch {
		case err == nil:
			lastMsgs[conv.ID] = msg
			userIDs = append(userIDs, msg.Sender)
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
	}
	users, err := s.store.GetUsers(ctx, dedupe(userIDs))
	if err != nil {
		return err
	}

	out := make([]model.ConversationView, 0, len(convs))
	for _, conv := range convs {
		out = append(out, view(conv, lastMsgs[conv.ID], users))
	}
	c.JSON(http.StatusOK, out)
	return nil
}

// CreateConversation finds or creates the conversation with recipientId.
// 201 when it was created, 200 when it already existed.
func (s *Server) CreateConversation(c *gin.Context) error {
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return errs.ErrValidation.Wrap(err)
	}
	uid := midsec.UserID(c)
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if req.RecipientID == "" || req.RecipientID == uid {
		return errs.ErrValidation.WrapMsg("recipientId must name another user")
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetUser(ctx, req.RecipientID); err != nil {
		return err
	}
	conv, created, err := s.store.FindOrCreateConversation(ctx, uid, req.RecipientID)
	if err != nil {
		return err
	}
	var last *model.Message
	if conv.LastMessage != "" {
		if last, err = s.store.GetMessage(ctx, conv.LastMessage); err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}
	users, err := s.store.GetUsers(ctx, conv.Participants)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, view(conv, last, users))
	return nil
}

func view(conv *model.Conversation, last *model.Message, users map[string]*model.User) model.ConversationView {
	v := model.ConversationView{
		ID:           conv.ID,
		Participants: make([]model.UserRef, 0, len(conv.Participants)),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	for _, p := range conv.Participants {
		if u := users[p]; u != nil {
			v.Participants = append(v.Participants, u.Ref())
		} else {
			v.Participants = append(v.Participants, model.UserRef{ID: p})
		}
	}
	if last != nil {
		mv := last.Populate(users[last.Sender])
		v.LastMessage = &mv
	}
	return v
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
