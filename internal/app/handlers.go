package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

const (
	maxSubmitBodyBytes = 1 << 20
	maxSubmitBatchSize = 100
	defaultPullLimit   = 100
	maxPullLimit       = 500
)

// wireEvent is the JSON form of an event on the HTTP surface.
type wireEvent struct {
	EventID         string          `json:"event_id"`
	OrderID         string          `json:"order_id"`
	LocationID      string          `json:"location_id,omitempty"`
	Seq             uint64          `json:"seq,omitempty"`
	Kind            string          `json:"kind"`
	OriginDeviceID  string          `json:"origin_device_id,omitempty"`
	ClientTimestamp time.Time       `json:"client_timestamp,omitzero"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

func toWireEvent(evt event.Event) wireEvent {
	return wireEvent{
		EventID:         evt.EventID,
		OrderID:         evt.OrderID,
		LocationID:      evt.LocationID,
		Seq:             evt.Seq,
		Kind:            string(evt.Kind),
		OriginDeviceID:  evt.OriginDeviceID,
		ClientTimestamp: evt.ClientTimestamp,
		Payload:         json.RawMessage(evt.PayloadJSON),
	}
}

func fromWireEvent(wire wireEvent) event.Event {
	return event.Event{
		EventID:         wire.EventID,
		OrderID:         wire.OrderID,
		LocationID:      wire.LocationID,
		Seq:             wire.Seq,
		Kind:            event.Kind(wire.Kind),
		OriginDeviceID:  wire.OriginDeviceID,
		ClientTimestamp: wire.ClientTimestamp,
		PayloadJSON:     []byte(wire.Payload),
	}
}

type submitRequest struct {
	Events []wireEvent `json:"events"`
}

type pullResponse struct {
	Events  []wireEvent `json:"events"`
	HasMore bool        `json:"has_more"`
}

// handleSubmit sequences a batch of events for one order. The origin
// device and location always come from the authenticated token, never
// from the request body.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, orderID string) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeDeviceTokenRequired, "device token is required"))
		return
	}

	var req submitRequest
	body := http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeEventPayloadInvalid, "invalid submit request body", err))
		return
	}
	if len(req.Events) == 0 {
		writeError(w, apperrors.New(apperrors.CodeEventPayloadInvalid, "events are required"))
		return
	}
	if len(req.Events) > maxSubmitBatchSize {
		writeError(w, apperrors.New(apperrors.CodeEventPayloadInvalid, "too many events in one batch"))
		return
	}

	events := make([]event.Event, 0, len(req.Events))
	for _, wire := range req.Events {
		evt := fromWireEvent(wire)
		evt.OriginDeviceID = claims.DeviceID
		evt.LocationID = claims.LocationID
		events = append(events, evt)
	}

	result, err := s.sequencer.Submit(r.Context(), orderID, events)
	if err != nil {
		logRequestError(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePull returns one ascending page of an order's backlog.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request, orderID string) {
	afterSeq, err := parseUintParam(r, "after_seq", 0)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeEventPayloadInvalid, "after_seq must be a non-negative integer"))
		return
	}
	limit, err := parseUintParam(r, "limit", defaultPullLimit)
	if err != nil || limit > maxPullLimit {
		writeError(w, apperrors.New(apperrors.CodeEventPayloadInvalid, "limit must be an integer up to 500"))
		return
	}

	page, err := s.sequencer.Pull(r.Context(), orderID, afterSeq, int(limit))
	if err != nil {
		logRequestError(r, err)
		writeError(w, err)
		return
	}

	resp := pullResponse{Events: make([]wireEvent, 0, len(page.Events)), HasMore: page.HasMore}
	for _, evt := range page.Events {
		resp.Events = append(resp.Events, toWireEvent(evt))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshot returns the order's current read model.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, orderID string) {
	snap, err := s.snapshots.GetSnapshot(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, apperrors.New(apperrors.CodeNotFound, "order snapshot not found"))
			return
		}
		logRequestError(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleLocationOrders lists recent order snapshots at a location for
// display surfaces that need a board view rather than a single ticket.
func (s *Server) handleLocationOrders(w http.ResponseWriter, r *http.Request, locationID string) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeDeviceTokenRequired, "device token is required"))
		return
	}
	if claims.LocationID != locationID {
		writeError(w, apperrors.New(apperrors.CodeLocationMismatch, "device is not registered at this location"))
		return
	}

	limit, err := parseUintParam(r, "limit", defaultPullLimit)
	if err != nil || limit > maxPullLimit {
		writeError(w, apperrors.New(apperrors.CodeEventPayloadInvalid, "limit must be an integer up to 500"))
		return
	}

	snaps, err := s.snapshots.ListSnapshotsByLocation(r.Context(), locationID, int(limit))
	if err != nil {
		logRequestError(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": snaps})
}

func parseUintParam(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxSubmitBodyBytes))
	_ = body.Close()
}
