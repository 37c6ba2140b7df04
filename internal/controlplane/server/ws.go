package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// handleStatusStream 连接后立即推送一次快照，之后推送每次状态变化与定时快照。
func (s *Server) handleStatusStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("⚠️ [WS] upgrade 失败: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.svc.Hub().Subscribe()
	defer cancel()

	ctx := c.Request.Context()
	if st, err := s.svc.Status(ctx); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(st); err != nil {
			return
		}
	}

	// 读循环只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				log.Debugf("[WS] 写入失败，断开: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
