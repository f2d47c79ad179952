package api

import (
	"net/http"

	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/model"

	"github.com/gin-gonic/gin"
)

// GetAllUsers lists everyone but the caller, for picking a recipient.
func (s *Server) GetAllUsers(c *gin.Context) error {
	users, err := s.store.ListUsersExcept(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		return err
	}
	if users == nil {
		users = []*model.User{}
	}
	c.JSON(http.StatusOK, users)
	return nil
}
