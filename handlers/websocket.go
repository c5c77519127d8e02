package handlers

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"report-workflow-service/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from separate origins.
		return true
	},
}

// ListenWorkflowEvents upgrades the connection and attaches the dashboard to
// the workflow event feed.
func (h *WorkflowHandler) ListenWorkflowEvents(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	log.Infof("WebSocket connection from actor %s", actor.ID)
	h.hub.RegisterClient(conn, actor.ID)
}
