package runtime

import (
	"net/http"
	"strings"

	configpkg "github.com/drblury/viewbridge/internal/runtime/config"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	"github.com/drblury/viewbridge/internal/runtime/jsoncodec"
	"github.com/drblury/viewbridge/internal/runtime/updates"
)

// ViewStatus is the web UI representation of one attached view.
type ViewStatus struct {
	NodeID          string          `json:"nodeId"`
	Loaded          bool            `json:"loaded"`
	PendingRequests int             `json:"pendingRequests"`
	Alert           *envelope.Alert `json:"alert,omitempty"`
	Metrics         *ViewMetrics    `json:"metrics,omitempty"`
}

// ChannelsStatus is the web UI representation of the interactivity store.
type ChannelsStatus struct {
	Channels    []interactivity.ChannelInfo `json:"channels"`
	Translators []string                    `json:"translators"`
}

// StartWebUIServer registers the page inspection endpoints when the web UI
// is enabled.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}

	port := s.Conf.WebUIPort
	if port == 0 {
		port = configpkg.DefaultWebUIPort
	}

	s.RegisterHTTPHandler(port, "/api/views", http.HandlerFunc(s.handleGetViews))
	s.RegisterHTTPHandler(port, "/api/channels", http.HandlerFunc(s.handleGetChannels))
	s.RegisterHTTPHandler(port, "/api/view-updates", http.HandlerFunc(s.handleGetViewUpdates))
}

// ViewStatuses reports every attached view in node id order.
func (s *Service) ViewStatuses() []ViewStatus {
	views := s.bridges()
	out := make([]ViewStatus, 0, len(views))
	for _, b := range views {
		out = append(out, ViewStatus{
			NodeID:          b.NodeID(),
			Loaded:          b.Loaded(),
			PendingRequests: b.PendingRequests(),
			Alert:           b.Alert(),
			Metrics:         s.metrics.View(b.NodeID()),
		})
	}
	return out
}

func (s *Service) handleGetViews(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.ViewStatuses())
}

func (s *Service) handleGetChannels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, ChannelsStatus{
		Channels:    s.store.Snapshot(),
		Translators: s.store.Translators(),
	})
}

func (s *Service) handleGetViewUpdates(w http.ResponseWriter, r *http.Request) {
	pending := s.PendingViewUpdates()
	if pending == nil {
		pending = []updates.Resolvable{}
	}
	s.writeJSON(w, r, pending)
}

func (s *Service) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")

	if s.Conf != nil && len(s.Conf.WebUICORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode web UI response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
