package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xiaoyuanzhu-com/screenshot-taker/server"
)

// Handlers holds references to server components
type Handlers struct {
	server *server.Server
}

// NewHandlers creates a new Handlers instance with server reference
func NewHandlers(srv *server.Server) *Handlers {
	return &Handlers{server: srv}
}

// paramID parses the :id path parameter, responding 400 when it is not a number
func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(c, "invalid screenshot id")
		return 0, false
	}
	return id, true
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
