// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/textstream/chat"
	"github.com/bureau-foundation/textstream/chat/matrix"
	"github.com/bureau-foundation/textstream/chat/memory"
	"github.com/bureau-foundation/textstream/chat/recorder"
	"github.com/bureau-foundation/textstream/chat/slack"
	"github.com/bureau-foundation/textstream/lib/config"
	"github.com/bureau-foundation/textstream/lib/version"
	"github.com/bureau-foundation/textstream/stream"
)

// finalizeTimeout bounds the closing flush after EOF or an interrupt.
const finalizeTimeout = 30 * time.Second

// readChunkSize is the stdin read size.
const readChunkSize = 4096

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath   string
	backend      string
	channel      string
	thread       string
	mode         string
	status       string
	rotateStatus bool
	failMessage  string
	logLevel     string
	recordPath   string
	inspectPath  string
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("textstream", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "config file (default: $TEXTSTREAM_CONFIG, else built-in defaults)")
	flagSet.StringVar(&opts.backend, "backend", "", "backend kind: matrix, slack or memory (overrides backend.kind)")
	flagSet.StringVarP(&opts.channel, "channel", "c", "", "destination channel or room ID")
	flagSet.StringVarP(&opts.thread, "thread", "t", "", "existing thread to post into")
	flagSet.StringVarP(&opts.mode, "mode", "m", "", "delivery mode: edit, thread or hybrid (overrides session.mode)")
	flagSet.StringVar(&opts.status, "status", "", "status line shown until the first output arrives")
	flagSet.BoolVar(&opts.rotateStatus, "rotate-status", false, "cycle status.messages until the first output arrives")
	flagSet.StringVar(&opts.failMessage, "fail-message", "Interrupted", "status shown when interrupted")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
	flagSet.StringVar(&opts.recordPath, "record", "", "journal every backend call to this file")
	flagSet.StringVar(&opts.inspectPath, "inspect", "", "print a journal written by --record as JSON lines and exit")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, stderr)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}
	if showVersion, _ := flagSet.GetBool("version"); showVersion {
		fmt.Fprintf(stdout, "textstream %s\n", version.Info())
		return nil
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	if opts.inspectPath != "" {
		return inspect(opts.inspectPath, stdout)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.channel == "" {
		return fmt.Errorf("--channel is required")
	}

	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}

	backend, dryRun, err := openBackend(cfg.Backend, logger)
	if err != nil {
		return err
	}

	if opts.recordPath != "" {
		journal, err := os.Create(opts.recordPath)
		if err != nil {
			return fmt.Errorf("creating journal: %w", err)
		}
		defer journal.Close()
		recording, err := recorder.New(backend, journal, recorder.Config{Logger: logger})
		if err != nil {
			return err
		}
		defer func() {
			if err := recording.Close(); err != nil {
				logger.Warn("closing journal", "path", opts.recordPath, "error", err)
			}
		}()
		backend = recording
	}

	streamer, err := stream.New(backend, stream.Config{
		Transport: cfg.Transport.Config(),
		Scheduler: cfg.Scheduler.Config(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	sessionOptions := cfg.Session.Options(opts.channel)
	sessionOptions.ThreadID = opts.thread
	// Scheduled flushes must outlive an interrupt so the failure status
	// still reaches the remote message.
	session, err := streamer.StartSession(context.Background(), sessionOptions)
	if err != nil {
		return err
	}

	err = pump(ctx, session, stdin, opts, cfg.Status)
	if closeErr := streamer.Close(context.Background()); closeErr != nil && err == nil {
		err = closeErr
	}

	if dryRun != nil {
		if printErr := printCalls(dryRun, stdout); printErr != nil && err == nil {
			err = printErr
		}
	}
	return err
}

// pump feeds stdin into session until EOF, a read error, or ctx is
// cancelled, then finalizes or fails the session accordingly.
func pump(ctx context.Context, session *stream.Session, stdin io.Reader, opts options, status config.StatusConfig) error {
	statusShown := false
	switch {
	case opts.rotateStatus:
		session.StartRotatingStatus(status.Config())
		statusShown = true
	case opts.status != "":
		session.SetStatus(opts.status)
		statusShown = true
	}

	stop := make(chan struct{})
	defer close(stop)
	chunks, readErrors := readChunks(stdin, stop)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				finalizeContext, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
				defer cancel()
				return session.Finalize(finalizeContext)
			}
			if statusShown {
				session.ClearStatus()
				statusShown = false
			}
			session.Append(chunk)

		case err := <-readErrors:
			failContext, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
			defer cancel()
			if failErr := session.Fail(failContext, "Error: "+err.Error()); failErr != nil {
				return errors.Join(err, failErr)
			}
			return fmt.Errorf("reading stdin: %w", err)

		case <-ctx.Done():
			failContext, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
			defer cancel()
			if err := session.Fail(failContext, opts.failMessage); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

// readChunks reads reader on its own goroutine, since a blocking read
// cannot observe cancellation. Chunks never end inside a UTF-8
// sequence. chunks is closed at EOF; any other error is sent on errs.
// Closing stop abandons the reader.
func readChunks(reader io.Reader, stop <-chan struct{}) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)

	send := func(chunk string) bool {
		select {
		case chunks <- chunk:
			return true
		case <-stop:
			return false
		}
	}

	go func() {
		buffer := make([]byte, readChunkSize)
		var pending []byte
		for {
			n, err := reader.Read(buffer)
			if n > 0 {
				pending = append(pending, buffer[:n]...)
				complete := completePrefix(pending)
				if complete > 0 {
					if !send(string(pending[:complete])) {
						return
					}
					pending = append(pending[:0], pending[complete:]...)
				}
			}
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 && !send(string(pending)) {
					return
				}
				close(chunks)
				return
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()
	return chunks, errs
}

// completePrefix returns the length of data without a trailing
// incomplete UTF-8 sequence.
func completePrefix(data []byte) int {
	for back := 1; back <= utf8.UTFMax && back <= len(data); back++ {
		start := len(data) - back
		if !utf8.RuneStart(data[start]) {
			continue
		}
		if utf8.FullRune(data[start:]) {
			return len(data)
		}
		return start
	}
	return len(data)
}

func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.backend != "" {
		cfg.Backend.Kind = opts.backend
	}
	if opts.mode != "" {
		mode, err := stream.ParseMode(opts.mode)
		if err != nil {
			return nil, fmt.Errorf("--mode: %w", err)
		}
		cfg.Session.Mode = mode
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger uses slog.TextHandler when stderr is a terminal and
// slog.JSONHandler otherwise, unless the format is set explicitly.
func newLogger(logging config.LoggingConfig, stderr io.Writer) (*slog.Logger, error) {
	level, err := logging.SlogLevel()
	if err != nil {
		return nil, err
	}

	text := logging.Format == "text"
	if logging.Format == "auto" {
		if file, ok := stderr.(*os.File); ok {
			text = term.IsTerminal(int(file.Fd()))
		}
	}

	options := &slog.HandlerOptions{Level: level}
	if text {
		return slog.New(slog.NewTextHandler(stderr, options)), nil
	}
	return slog.New(slog.NewJSONHandler(stderr, options)), nil
}

// openBackend builds the configured backend. For the memory backend it
// also returns the backend itself so its calls can be printed.
func openBackend(settings config.BackendConfig, logger *slog.Logger) (chat.Backend, *memory.Backend, error) {
	switch settings.Kind {
	case config.BackendMatrix:
		backend, err := matrix.New(matrix.Config{
			HomeserverURL: settings.Matrix.HomeserverURL,
			AccessToken:   settings.Matrix.AccessToken,
			Logger:        logger,
		})
		return backend, nil, err
	case config.BackendSlack:
		backend, err := slack.New(slack.Config{
			Token:  settings.Slack.Token,
			APIURL: settings.Slack.APIURL,
			Logger: logger,
		})
		return backend, nil, err
	case config.BackendMemory:
		backend := memory.New(logger)
		return backend, backend, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", settings.Kind)
	}
}

// callRecord is the JSON form of a dry-run call.
type callRecord struct {
	Kind      string `json:"kind"`
	Channel   string `json:"channel"`
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text"`
}

func printCalls(backend *memory.Backend, stdout io.Writer) error {
	encoder := json.NewEncoder(stdout)
	for _, call := range backend.Calls() {
		if err := encoder.Encode(callRecord{
			Kind:      call.Kind.String(),
			Channel:   call.Channel,
			ThreadID:  call.ThreadID,
			MessageID: call.MessageID,
			Text:      call.Text,
		}); err != nil {
			return err
		}
	}
	return nil
}

func inspect(path string, stdout io.Writer) error {
	journal, err := os.Open(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := recorder.ReadAll(journal)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	encoder := json.NewEncoder(stdout)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet, output io.Writer) {
	fmt.Fprintf(output, `textstream streams standard input into a live-updating chat message.

Usage:
  textstream --channel CHANNEL [flags] < input

Examples:
  # Dry run against the in-memory backend; prints every call as JSON
  echo "hello" | textstream --channel C1 --backend memory

  # Stream a build log into a Matrix room, moving to a thread when long
  make 2>&1 | textstream --config textstream.yaml -c '!room:example.org' --mode hybrid --rotate-status

  # Print a journal written by --record
  textstream --inspect calls.journal

Flags:
`)
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}
