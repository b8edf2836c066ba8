// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/bureau-foundation/textstream/chat"
)

// Config holds configuration for creating a Backend.
type Config struct {
	// Token is a bot or user token ("xoxb-...", "xoxp-...").
	Token string

	// APIURL overrides the Web API base URL. It must end with "/".
	// Empty means Slack's production API.
	APIURL string

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Backend posts and edits Slack messages.
type Backend struct {
	client *slack.Client
	logger *slog.Logger
}

var _ chat.Backend = (*Backend)(nil)

// New creates a Backend.
func New(config Config) (*Backend, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("slack: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	options := []slack.Option{slack.OptionHTTPClient(httpClient)}
	if config.APIURL != "" {
		options = append(options, slack.OptionAPIURL(config.APIURL))
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client: slack.New(config.Token, options...),
		logger: logger,
	}, nil
}

// CreateMessage calls chat.postMessage, with thread_ts when
// request.ThreadID is set.
func (b *Backend) CreateMessage(ctx context.Context, request chat.PostRequest) (chat.MessageRef, error) {
	options := []slack.MsgOption{slack.MsgOptionText(request.Text, false)}
	if request.ThreadID != "" {
		options = append(options, slack.MsgOptionTS(request.ThreadID))
	}

	channel, timestamp, err := b.client.PostMessageContext(ctx, request.Channel, options...)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("slack: chat.postMessage to %s: %w", request.Channel, normalizeError(err))
	}
	b.logger.Debug("slack message posted", "channel", channel, "ts", timestamp, "thread_ts", request.ThreadID)
	return chat.MessageRef{ID: timestamp, Channel: channel}, nil
}

// EditMessage calls chat.update.
func (b *Backend) EditMessage(ctx context.Context, request chat.UpdateRequest) (chat.MessageRef, error) {
	channel, timestamp, _, err := b.client.UpdateMessageContext(ctx, request.Channel, request.MessageID,
		slack.MsgOptionText(request.Text, false))
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("slack: chat.update of %s in %s: %w", request.MessageID, request.Channel, normalizeError(err))
	}
	b.logger.Debug("slack message updated", "channel", channel, "ts", timestamp)
	return chat.MessageRef{ID: timestamp, Channel: channel}, nil
}

// normalizeError converts slack-go's error types into *chat.APIError.
// Transport failures pass through so network classification still
// sees them.
func normalizeError(err error) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &chat.APIError{
			Code:        chat.CodeRateLimited,
			BackendCode: chat.CodeRateLimited,
			Message:     rateLimited.Error(),
			StatusCode:  http.StatusTooManyRequests,
			RetryAfter:  rateLimited.RetryAfter,
		}
	}

	var response slack.SlackErrorResponse
	if errors.As(err, &response) {
		return &chat.APIError{
			Code:        response.Err,
			BackendCode: response.Err,
			Message:     response.Error(),
		}
	}

	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return &chat.APIError{
			StatusCode: status.Code,
			Message:    status.Status,
		}
	}
	return err
}
