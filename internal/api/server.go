package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/openbehavior/trackpipe/internal/control"
	"github.com/openbehavior/trackpipe/internal/logger"
	"github.com/openbehavior/trackpipe/internal/pipeline"
	"github.com/openbehavior/trackpipe/internal/preview"
)

// Server exposes the pipeline's control and status surface over HTTP.
// Camera parameter updates submitted here travel through the control
// mailbox; they never touch the frame data path.
type Server struct {
	router   *mux.Router
	controls *control.Mailbox
	stats    func() pipeline.Stats
	preview  *preview.MJPEG
	stop     *pipeline.Signal
	upgrader websocket.Upgrader
}

// NewServer creates the API server. preview may be nil when the preview
// output is disabled.
func NewServer(controls *control.Mailbox, stats func() pipeline.Stats, pv *preview.MJPEG, stop *pipeline.Signal) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		controls: controls,
		stats:    stats,
		preview:  pv,
		stop:     stop,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/camera/controls", s.handleUpdateControls).Methods("PUT", "POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.preview != nil {
		api.HandleFunc("/preview", s.preview.Handler()).Methods("GET")
		api.HandleFunc("/preview/snapshot", s.handleSnapshot).Methods("GET")
		api.HandleFunc("/preview/ws", s.handlePreviewWS)
	}
}

// Start starts the HTTP server and blocks
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("API server listening")
	return http.ListenAndServe(addr, s.router)
}

// Router returns the underlying router, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleUpdateControls accepts a partial parameter update. Unknown JSON
// fields are ignored; fields left out keep their previously applied values.
func (s *Server) handleUpdateControls(w http.ResponseWriter, r *http.Request) {
	var update control.ParameterUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, fmt.Sprintf("invalid control update: %v", err), http.StatusBadRequest)
		return
	}

	if update.Exposure != nil && *update.Exposure <= 0 {
		http.Error(w, "exposure must be positive", http.StatusBadRequest)
		return
	}

	s.controls.Submit(update)

	logger.WithComponent("api").Debug().
		Interface("update", update).
		Msg("Control update submitted")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "submitted"})
}

// statsSnapshot extends the dispatcher counters with the control-side view:
// how many parameter updates were superseded before the source read them.
type statsSnapshot struct {
	pipeline.Stats
	ControlOverwrites uint64 `json:"control_overwrites"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := statsSnapshot{Stats: s.stats()}
	if s.controls != nil {
		snap.ControlOverwrites = s.controls.Overwrites()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.stop.Set()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "stopping"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.stop.IsSet() {
		status = "stopping"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data := s.preview.Snapshot()
	if data == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// handlePreviewWS streams encoded preview frames over a websocket, one
// binary message per frame.
func (s *Server) handlePreviewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	frames, unsubscribe := s.preview.Subscribe()
	defer unsubscribe()

	for {
		select {
		case data := <-frames:
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-s.stop.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}
