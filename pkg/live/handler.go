package live

import (
	"encoding/json"
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Handler upgrades the request and streams hub broadcasts to it. When
// initial is set its message is delivered before any broadcast.
func Handler(hub *Hub, initial func() Message) gin.HandlerFunc {
	return func(c *gin.Context) {
		serve(hub, initial, c.Writer, c.Request)
	}
}

func serve(hub *Hub, initial func() Message, w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		// Origins are already checked by the CORS middleware.
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("live: accept: %v", err)
		return
	}
	defer conn.CloseNow()

	client := NewClient(hub, conn)
	if initial != nil {
		data, err := json.Marshal(initial())
		if err != nil {
			log.Printf("live: marshal initial snapshot: %v", err)
		} else {
			client.send <- data
		}
	}
	client.Run(r.Context())
}
