package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/platform/timeouts"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/sequencer"
)


// Client is the device-side HTTP client for the authority. It
// implements the outbox agent's transport.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the authority at baseURL, presenting
// the given device token on every request.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.ClientRequest}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// SubmitEvents uploads one order's batch and returns the authority's
// accept/reject verdicts.
func (c *Client) SubmitEvents(ctx context.Context, orderID string, events []event.Event) (sequencer.SubmitResult, error) {
	req := submitRequest{Events: make([]wireEvent, 0, len(events))}
	for _, evt := range events {
		req.Events = append(req.Events, toWireEvent(evt))
	}
	body, err := json.Marshal(req)
	if err != nil {
		return sequencer.SubmitResult{}, fmt.Errorf("encode submit request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/orders/%s/events:submit", c.baseURL, url.PathEscape(orderID))
	var result sequencer.SubmitResult
	if err := c.do(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return sequencer.SubmitResult{}, err
	}
	return result, nil
}

// PullEvents fetches one ascending backlog page for an order.
func (c *Client) PullEvents(ctx context.Context, orderID string, afterSeq uint64, limit int) (sequencer.PullResult, error) {
	endpoint := fmt.Sprintf("%s/v1/orders/%s/events?after_seq=%s&limit=%d",
		c.baseURL, url.PathEscape(orderID), strconv.FormatUint(afterSeq, 10), limit)

	var resp pullResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return sequencer.PullResult{}, err
	}
	result := sequencer.PullResult{
		Events:  make([]event.Event, 0, len(resp.Events)),
		HasMore: resp.HasMore,
	}
	for _, wire := range resp.Events {
		result.Events = append(result.Events, fromWireEvent(wire))
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error.Code != "" {
			return apperrors.WithMetadata(apperrors.Code(errResp.Error.Code), errResp.Error.Message, errResp.Error.Metadata)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
