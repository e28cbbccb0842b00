package handler

import (
	"net/http"

	"commUnity/internal/relay"
	"commUnity/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	hub      *relay.Hub
	users    *service.UserService
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *relay.Hub, users *service.UserService, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WSHandler{
		hub:   hub,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 非浏览器客户端不带 Origin
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Serve 升级为 websocket；身份已由 AuthMiddleware 校验
func (h *WSHandler) Serve(c *gin.Context) {
	user, err := h.users.Profile(c.Request.Context(), currentUser(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		return
	}

	client := relay.NewClient(h.hub, conn, user.ID, user.Username)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(c.Request.Context())
}
