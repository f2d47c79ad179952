package api

import (
	"net/http"
	"sort"

	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"

	"github.com/gin-gonic/gin"
)

// GetContactStories returns the live stories of everyone the caller shares a
// conversation with, newest first, creators populated with their status.
func (s *Server) GetContactStories(c *gin.Context) error {
	ctx := c.Request.Context()
	uid := midsec.UserID(c)
	convs, err := s.store.ListConversations(ctx, uid)
	if err != nil {
		return err
	}
	contacts := make([]string, 0, len(convs))
	for _, conv := range convs {
		for _, p := range conv.Participants {
			if p != uid {
				contacts = append(contacts, p)
			}
		}
	}
	contacts = dedupe(contacts)
	if len(contacts) == 0 {
		c.JSON(http.StatusOK, []model.StoryView{})
		return nil
	}

	stories, err := s.store.ListActiveStories(ctx, contacts, s.now())
	if err != nil {
		return err
	}
	sort.SliceStable(stories, func(i, j int) bool { return stories[i].CreatedAt.After(stories[j].CreatedAt) })
	return s.writeStories(c, stories, true)
}

// GetMyStories returns the caller's live stories, oldest first.
func (s *Server) GetMyStories(c *gin.Context) error {
	stories, err := s.store.ListActiveStories(c.Request.Context(), []string{midsec.UserID(c)}, s.now())
	if err != nil {
		return err
	}
	return s.writeStories(c, stories, false)
}

func (s *Server) writeStories(c *gin.Context, stories []*model.Story, withStatus bool) error {
	ids := make([]string, 0, len(stories))
	for _, st := range stories {
		ids = append(ids, st.User)
	}
	users, err := s.store.GetUsers(c.Request.Context(), dedupe(ids))
	if err != nil {
		return err
	}
	out := make([]model.StoryView, 0, len(stories))
	for _, st := range stories {
		out = append(out, st.Populate(users[st.User], withStatus))
	}
	c.JSON(http.StatusOK, out)
	return nil
}
