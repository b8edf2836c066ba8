// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/textstream/chat"
)

// fakeSlack serves chat.postMessage and chat.update. Requests are
// recorded as parsed forms keyed by API method.
type fakeSlack struct {
	server *httptest.Server

	mu      sync.Mutex
	forms   []url.Values
	methods []string
	respond func(writer http.ResponseWriter, method string) bool
}

func newFakeSlack(t *testing.T) *fakeSlack {
	t.Helper()
	fake := &fakeSlack{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if err := request.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		method := request.URL.Path[1:]

		fake.mu.Lock()
		fake.forms = append(fake.forms, request.PostForm)
		fake.methods = append(fake.methods, method)
		respond := fake.respond
		fake.mu.Unlock()

		if respond != nil && respond(writer, method) {
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"ok":      true,
			"channel": request.PostForm.Get("channel"),
			"ts":      "1767225600.000100",
		})
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeSlack) last() (string, url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.forms) == 0 {
		return "", nil
	}
	return f.methods[len(f.methods)-1], f.forms[len(f.forms)-1]
}

func newTestBackend(t *testing.T, fake *fakeSlack) *Backend {
	t.Helper()
	backend, err := New(Config{Token: "xoxb-test", APIURL: fake.server.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return backend
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without token succeeded")
	}
}

func TestCreateMessage(t *testing.T) {
	fake := newFakeSlack(t)
	backend := newTestBackend(t, fake)

	ref, err := backend.CreateMessage(context.Background(), chat.PostRequest{Channel: "C1", Text: "_Thinking..._\nhi"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if ref.ID != "1767225600.000100" || ref.Channel != "C1" {
		t.Errorf("ref = %+v", ref)
	}

	method, form := fake.last()
	if method != "chat.postMessage" {
		t.Errorf("method = %q", method)
	}
	if form.Get("channel") != "C1" || form.Get("text") != "_Thinking..._\nhi" {
		t.Errorf("form = %v", form)
	}
	if form.Get("thread_ts") != "" {
		t.Errorf("top-level post sent thread_ts %q", form.Get("thread_ts"))
	}
}

func TestCreateThreadReply(t *testing.T) {
	fake := newFakeSlack(t)
	backend := newTestBackend(t, fake)

	if _, err := backend.CreateMessage(context.Background(), chat.PostRequest{Channel: "C1", Text: "more", ThreadID: "1700.01"}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if _, form := fake.last(); form.Get("thread_ts") != "1700.01" {
		t.Errorf("thread_ts = %q, want 1700.01", form.Get("thread_ts"))
	}
}

func TestEditMessage(t *testing.T) {
	fake := newFakeSlack(t)
	backend := newTestBackend(t, fake)

	if _, err := backend.EditMessage(context.Background(), chat.UpdateRequest{Channel: "C1", MessageID: "1700.01", Text: "new"}); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	method, form := fake.last()
	if method != "chat.update" {
		t.Errorf("method = %q", method)
	}
	if form.Get("ts") != "1700.01" || form.Get("text") != "new" || form.Get("channel") != "C1" {
		t.Errorf("form = %v", form)
	}
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name           string
		respond        func(writer http.ResponseWriter)
		wantCode       string
		wantStatus     int
		wantRetryAfter time.Duration
	}{
		{
			name: "api error",
			respond: func(writer http.ResponseWriter) {
				writer.Header().Set("Content-Type", "application/json")
				writer.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			},
			wantCode: chat.CodeChannelNotFound,
		},
		{
			name: "rate limited",
			respond: func(writer http.ResponseWriter) {
				writer.Header().Set("Retry-After", "3")
				writer.WriteHeader(http.StatusTooManyRequests)
			},
			wantCode:       chat.CodeRateLimited,
			wantStatus:     429,
			wantRetryAfter: 3 * time.Second,
		},
		{
			name: "server error",
			respond: func(writer http.ResponseWriter) {
				writer.WriteHeader(http.StatusServiceUnavailable)
			},
			wantStatus: 503,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fake := newFakeSlack(t)
			fake.respond = func(writer http.ResponseWriter, _ string) bool {
				test.respond(writer)
				return true
			}
			backend := newTestBackend(t, fake)

			_, err := backend.CreateMessage(context.Background(), chat.PostRequest{Channel: "C1", Text: "x"})
			var apiErr *chat.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *chat.APIError", err)
			}
			if apiErr.Code != test.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, test.wantCode)
			}
			if apiErr.StatusCode != test.wantStatus {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, test.wantStatus)
			}
			if apiErr.RetryAfter != test.wantRetryAfter {
				t.Errorf("RetryAfter = %v, want %v", apiErr.RetryAfter, test.wantRetryAfter)
			}
		})
	}
}

func TestNormalizePassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("dial tcp: connection refused")
	if got := normalizeError(plain); got != plain {
		t.Errorf("normalizeError changed a transport error: %v", got)
	}
}
