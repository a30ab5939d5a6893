package server

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zond/juiceroom/events"

	goccy "github.com/goccy/go-json"
)

const (
	feedBufferSize = 256
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// Feeds are read only.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FeedMessage is the JSON frame sent for each room event.
type FeedMessage struct {
	Room  int          `json:"room"`
	Event events.Kind  `json:"event"`
	Data  events.Event `json:"data"`
}

// Handler serves the room feeds.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed/{roomID}", s.feed)
	return mux
}

// quiet events would drown the feed.
func quiet(kind events.Kind) bool {
	return kind == events.Tick || kind == events.ShortTick
}

func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("roomID"))
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	rm := s.hotel.Room(id)
	if rm == nil {
		http.Error(w, "room not loaded", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed #%d: upgrading: %v", id, err)
		return
	}
	defer conn.Close()

	// Events are encoded on the room loop, where the entities they point
	// to may be read.
	send := make(chan []byte, feedBufferSize)
	overflow := make(chan struct{})
	stop, err := s.hotel.Watch(r.Context(), id, func(ev events.Event) {
		if quiet(ev.Kind()) {
			return
		}
		b, err := goccy.Marshal(FeedMessage{Room: id, Event: ev.Kind(), Data: ev})
		if err != nil {
			log.Printf("feed #%d: encoding %v: %v", id, ev.Kind(), err)
			return
		}
		select {
		case send <- b:
		default:
			select {
			case <-overflow:
			default:
				close(overflow)
			}
		}
	})
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "room unloaded"))
		return
	}
	defer stop()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("feed #%d: reading: %v", id, err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()
	closeWith := func(code int, text string) {
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(feedWriteWait))
	}
	for {
		select {
		case b := <-send:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		case <-overflow:
			closeWith(websocket.ClosePolicyViolation, "too slow")
			return
		case <-rm.Done():
			closeWith(websocket.CloseGoingAway, "room unloaded")
			return
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
