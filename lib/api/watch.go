package api

import (
	"github.com/cyclopcam/connect/lib/scanner"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"time"
)

// scanWatchInterval is the rate at which scan progress is pushed.
const scanWatchInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// watchScan pushes the scan state over a websocket until the scan is over,
// so that the UI does not have to poll GET /api/scan.
func (s *Server) watchScan(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debugf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(scanWatchInterval)
	defer ticker.Stop()
	for {
		state := s.deps.Scanner.Snapshot()
		if err := conn.WriteJSON(state); err != nil {
			log.Debugf("Scan watcher left: %v", err)
			return
		}
		if state.Status.IsNot(scanner.Busy) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		select {
		case <-ticker.C:
		case <-c.Request.Context().Done():
			return
		}
	}
}
