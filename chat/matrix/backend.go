// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/lib/clock"
	"github.com/bureau-foundation/textstream/lib/netutil"
)

// Config holds configuration for creating a Backend.
type Config struct {
	// HomeserverURL is the base URL of the homeserver, e.g.
	// "https://matrix.example.org".
	HomeserverURL string

	// AccessToken authenticates every request.
	AccessToken string

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client

	// Clock stamps fallback transaction IDs and evaluates Retry-After
	// dates. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Backend is an authenticated Matrix client scoped to the two calls a
// streaming session needs.
type Backend struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	clock       clock.Clock
	logger      *slog.Logger

	transactionCounter atomic.Int64
}

var _ chat.Backend = (*Backend)(nil)

// New creates a Backend.
func New(config Config) (*Backend, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("matrix: HomeserverURL is required")
	}
	// Request URLs are built by concatenation onto the trimmed string,
	// so only validate the structure here.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("matrix: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("matrix: HomeserverURL %q must be http or https", config.HomeserverURL)
	}
	if config.AccessToken == "" {
		return nil, fmt.Errorf("matrix: AccessToken is required")
	}

	backend := &Backend{
		baseURL:     strings.TrimRight(config.HomeserverURL, "/"),
		accessToken: config.AccessToken,
		httpClient:  config.HTTPClient,
		clock:       config.Clock,
		logger:      config.Logger,
	}
	if backend.httpClient == nil {
		backend.httpClient = http.DefaultClient
	}
	if backend.clock == nil {
		backend.clock = clock.Real()
	}
	if backend.logger == nil {
		backend.logger = slog.Default()
	}
	return backend, nil
}

// CreateMessage sends a message to the room, as a thread reply when
// request.ThreadID is set.
func (b *Backend) CreateMessage(ctx context.Context, request chat.PostRequest) (chat.MessageRef, error) {
	content := newTextMessage(request.Text)
	if request.ThreadID != "" {
		content = newThreadReply(request.ThreadID, request.Text)
	}
	eventID, err := b.sendMessage(ctx, request.Channel, request.IdempotencyKey, content)
	if err != nil {
		return chat.MessageRef{}, err
	}
	return chat.MessageRef{ID: eventID, Channel: request.Channel}, nil
}

// EditMessage sends an m.replace event for request.MessageID. The
// returned ref names the original event, which stays the message's
// identity for later edits.
func (b *Backend) EditMessage(ctx context.Context, request chat.UpdateRequest) (chat.MessageRef, error) {
	if request.MessageID == "" {
		return chat.MessageRef{}, &chat.APIError{
			Code:    chat.CodeInvalidArguments,
			Message: "edit requires a message ID",
		}
	}
	content := newReplacement(request.MessageID, request.Text)
	if _, err := b.sendMessage(ctx, request.Channel, request.IdempotencyKey, content); err != nil {
		return chat.MessageRef{}, err
	}
	return chat.MessageRef{ID: request.MessageID, Channel: request.Channel}, nil
}

// sendMessage PUTs an m.room.message event and returns its event ID.
func (b *Backend) sendMessage(ctx context.Context, roomID, transactionID string, content MessageContent) (string, error) {
	if transactionID == "" {
		transactionID = b.nextTransactionID()
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID),
		url.PathEscape(transactionID),
	)

	body, err := b.doRequest(ctx, http.MethodPut, path, content)
	if err != nil {
		return "", fmt.Errorf("matrix: send to %q: %w", roomID, err)
	}

	var response sendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: parsing send response: %w", err)
	}
	if response.EventID == "" {
		return "", fmt.Errorf("matrix: send response has no event_id")
	}
	b.logger.Debug("matrix event sent",
		"room_id", roomID,
		"event_id", response.EventID,
		"transaction_id", transactionID,
	)
	return response.EventID, nil
}

// doRequest performs an authenticated JSON request and returns the
// response body. Non-2xx responses become *chat.APIError.
func (b *Backend) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+b.accessToken)

	response, err := b.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		responseBody, err := netutil.ReadResponse(response.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body: %w", err)
		}
		return responseBody, nil
	}

	headerRetryAfter := netutil.ParseRetryAfter(response.Header, b.clock.Now())
	raw := netutil.ErrorBody(response.Body)

	// Every Matrix error uses the same JSON shape. Proxies in front of
	// the homeserver may answer with HTML instead; keep the status so
	// the failure can still be classified.
	var decoded errorResponse
	if json.Unmarshal([]byte(raw), &decoded) != nil || decoded.Code == "" {
		return nil, &chat.APIError{
			StatusCode: response.StatusCode,
			Message:    raw,
			RetryAfter: headerRetryAfter,
		}
	}
	return nil, decoded.apiError(response.StatusCode, headerRetryAfter)
}

// nextTransactionID generates a transaction ID for sends that carry no
// idempotency key. Format: "textstream-<unix_ms>-<counter>".
func (b *Backend) nextTransactionID() string {
	counter := b.transactionCounter.Add(1)
	return fmt.Sprintf("textstream-%d-%d", b.clock.Now().UnixMilli(), counter)
}
