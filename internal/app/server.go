// Package app wires the authority's HTTP surface: batch submission,
// backlog pull, snapshot reads, and the per-location event stream.
package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/auth/devicetoken"
	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/dispatch"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/sequencer"
)

type deviceClaimsContextKey struct{}

// Server exposes the sync authority over HTTP and websocket.
type Server struct {
	sequencer *sequencer.Sequencer
	snapshots storage.SnapshotStore
	hub       *dispatch.Hub
	tokenCfg  devicetoken.Config
}

// NewServer assembles the authority's transport layer. The hub may be
// nil when real-time streaming is disabled.
func NewServer(seq *sequencer.Sequencer, snapshots storage.SnapshotStore, hub *dispatch.Hub, tokenCfg devicetoken.Config) *Server {
	return &Server{
		sequencer: seq,
		snapshots: snapshots,
		hub:       hub,
		tokenCfg:  tokenCfg,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/v1/orders/", s.withDeviceAuth(http.HandlerFunc(s.handleOrderRoutes)))
	mux.Handle("/v1/locations/", s.withDeviceAuth(http.HandlerFunc(s.handleLocationRoutes)))
	return mux
}

// withDeviceAuth enforces a valid bearer device token and stores the
// claims on the request context.
func (s *Server) withDeviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := devicetoken.Validate(bearerToken(r), s.tokenCfg)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), deviceClaimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) (devicetoken.Claims, bool) {
	claims, ok := ctx.Value(deviceClaimsContextKey{}).(devicetoken.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	// Websocket clients cannot set headers from every runtime; accept the
	// token as a query parameter on stream upgrades only.
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// handleOrderRoutes dispatches /v1/orders/{orderID}/... paths.
func (s *Server) handleOrderRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/orders/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "unknown order route"))
		return
	}
	orderID, action := parts[0], parts[1]

	switch action {
	case "events:submit":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleSubmit(w, r, orderID)
	case "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handlePull(w, r, orderID)
	case "snapshot":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleSnapshot(w, r, orderID)
	default:
		writeError(w, apperrors.New(apperrors.CodeNotFound, "unknown order route"))
	}
}

// handleLocationRoutes dispatches /v1/locations/{locationID}/... paths.
func (s *Server) handleLocationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/locations/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "unknown location route"))
		return
	}
	locationID, action := parts[0], parts[1]

	switch action {
	case "stream":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleStream(w, r, locationID)
	case "orders":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleLocationOrders(w, r, locationID)
	default:
		writeError(w, apperrors.New(apperrors.CodeNotFound, "unknown location route"))
	}
}

// handleStream upgrades to a websocket and forwards committed events for
// one location until the peer goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, locationID string) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeDeviceTokenRequired, "device token is required"))
		return
	}
	if claims.LocationID != locationID {
		writeError(w, apperrors.WithMetadata(apperrors.CodeLocationMismatch,
			"device is not registered at this location", map[string]string{
				"location_id": locationID,
			}))
		return
	}
	if s.hub == nil {
		http.Error(w, "streaming is not configured", http.StatusServiceUnavailable)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		s.serveStreamConn(conn, locationID, claims.DeviceID)
	}).ServeHTTP(w, r)
}

func (s *Server) serveStreamConn(conn *websocket.Conn, locationID, deviceID string) {
	defer func() {
		_ = conn.Close()
	}()

	peer := dispatch.NewPeer(deviceID, json.NewEncoder(conn))
	s.hub.Subscribe(locationID, peer)
	defer s.hub.Unsubscribe(locationID, peer)

	_ = peer.WriteFrame(dispatch.Frame{Type: dispatch.FrameTypeHello})

	// The stream is server-to-client; drain the connection so keepalive
	// frames are discarded and closure is observed.
	decoder := json.NewDecoder(conn)
	for {
		var frame dispatch.Frame
		if err := decoder.Decode(&frame); err != nil {
			return
		}
	}
}

func logRequestError(r *http.Request, err error) {
	log.Printf("app: %s %s: %v", r.Method, r.URL.Path, err)
}
