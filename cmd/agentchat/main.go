// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command agentchat is a console for chatting with A2A agents, with durable
// conversations and stream reconnection.
//
// Usage:
//
//	agentchat chat assistant --config config.yaml
//	agentchat send assistant "summarize this repo"
//	agentchat history assistant
//	agentchat inspect --port 9090
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/kadirpekel/agentchat/pkg/a2a"
	"github.com/kadirpekel/agentchat/pkg/chat"
	"github.com/kadirpekel/agentchat/pkg/config"
	"github.com/kadirpekel/agentchat/pkg/logger"
	"github.com/kadirpekel/agentchat/pkg/store"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Chat    ChatCmd    `cmd:"" help:"Interactive chat with an agent."`
	Send    SendCmd    `cmd:"" help:"Send a single message to an agent."`
	History HistoryCmd `cmd:"" help:"Show the stored conversation with an agent."`
	Clear   ClearCmd   `cmd:"" help:"Delete the stored conversation with an agent."`
	Inspect InspectCmd `cmd:"" help:"Serve conversation and metrics inspection endpoints."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"agentchat.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentchat version %s\n", version)
	return nil
}

// session bundles everything a command needs for one agent conversation.
type session struct {
	cfg      *config.Config
	agent    *config.AgentConfig
	client   *a2a.Client
	store    *store.SQLStore
	streamer *chat.Streamer
	history  *chat.History
	log      *slog.Logger
}

func setup(cli *CLI) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	levelStr := cli.LogLevel
	if levelStr == "" {
		levelStr = cfg.Logger.Level
	}
	level, _ := logger.ParseLevel(levelStr)

	format := cli.LogFormat
	if format == "" {
		format = cfg.Logger.Format
	}

	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		_ = cleanup // held for process lifetime
		output = file
	}
	logger.Init(level, output, format)

	return cfg, nil
}

func openSession(cfg *config.Config, agentID string) (*session, error) {
	agent := cfg.Agent(agentID)
	if agent == nil {
		return nil, fmt.Errorf("agent %q not found in config", agentID)
	}

	clientCfg := &a2a.ClientConfig{
		BaseURL: agent.URL,
		CardURL: agent.CardURL,
		Timeout: cfg.Stream.RequestTimeout,
		Auth:    agent.Auth.Credentials(),
		TLS:     agent.TLS,
	}
	client, err := a2a.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for agent %s: %w", agentID, err)
	}

	messageStore, err := store.NewSQLStoreFromConfig(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}

	log := logger.GetLogger()

	// Each resubscribe attempt gets a fresh client on the same config.
	reconnect := func() (chat.ProtocolClient, error) {
		return a2a.NewClient(clientCfg)
	}

	streamer := chat.NewStreamer(client, reconnect, messageStore, log,
		chat.WithMaxResubscribeAttempts(cfg.Stream.MaxResubscribeAttempts))

	return &session{
		cfg:      cfg,
		agent:    agent,
		client:   client,
		store:    messageStore,
		streamer: streamer,
		history:  chat.NewHistory(client, messageStore, log),
		log:      log,
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Warn("Failed to close message store", "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()
	return ctx, cancel
}

// ChatCmd runs an interactive chat loop.
type ChatCmd struct {
	Agent   string `arg:"" help:"Agent id from the config."`
	Context string `help:"Conversation context id (default: one per agent)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	cfg, err := setup(cli)
	if err != nil {
		return err
	}

	sess, err := openSession(cfg, c.Agent)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext()
	defer cancel()

	card, err := sess.client.AgentCard(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	if !card.Capabilities.Streaming {
		return fmt.Errorf("agent %s does not support streaming", c.Agent)
	}

	contextID := c.Context
	if contextID == "" {
		contextID = "chat-" + c.Agent
	}

	fmt.Printf("Chatting with %s (%s). Ctrl+D to exit.\n", card.Name, sess.agent.Name)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if err := c.runTurn(ctx, sess, contextID, prompt); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Println()
	}

	return scanner.Err()
}

func (c *ChatCmd) runTurn(ctx context.Context, sess *session, contextID, prompt string) error {
	userMsg := chat.NewUserChatMessage(uuid.NewString(), c.Agent, contextID, prompt, time.Now())
	userMsg.AgentCardURL = sess.agent.CardURL
	if err := sess.store.SaveMessage(ctx, userMsg); err != nil {
		sess.log.Warn("Failed to persist user message", "error", err)
	}

	renderer := newRenderer(os.Stdout)
	_, err := sess.streamer.StreamMessage(ctx, chat.StreamRequest{
		Prompt:       prompt,
		AgentID:      c.Agent,
		AgentCardURL: sess.agent.CardURL,
		Model:        sess.agent.Model,
		ContextID:    contextID,
	}, renderer.Update)
	renderer.Finish()
	return err
}

// SendCmd sends one message and prints the final response.
type SendCmd struct {
	Agent   string `arg:"" help:"Agent id from the config."`
	Message string `arg:"" help:"Message text."`
	Context string `help:"Conversation context id."`
	Stream  bool   `default:"true" negatable:"" help:"Stream the response (use --no-stream for a blocking send)."`
}

func (c *SendCmd) Run(cli *CLI) error {
	cfg, err := setup(cli)
	if err != nil {
		return err
	}

	sess, err := openSession(cfg, c.Agent)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext()
	defer cancel()

	contextID := c.Context
	if contextID == "" {
		contextID = "chat-" + c.Agent
	}

	userMsg := chat.NewUserChatMessage(uuid.NewString(), c.Agent, contextID, c.Message, time.Now())
	userMsg.AgentCardURL = sess.agent.CardURL
	if err := sess.store.SaveMessage(ctx, userMsg); err != nil {
		sess.log.Warn("Failed to persist user message", "error", err)
	}

	if !c.Stream {
		task, err := sess.client.SendMessage(ctx, a2a.MessageSendParams{
			Message: a2a.NewUserMessage(uuid.NewString(), contextID, c.Message),
		})
		if err != nil {
			return err
		}
		for _, block := range chat.TaskToContentBlocks(task) {
			printBlock(os.Stdout, block)
		}
		return nil
	}

	renderer := newRenderer(os.Stdout)
	_, err = sess.streamer.StreamMessage(ctx, chat.StreamRequest{
		Prompt:       c.Message,
		AgentID:      c.Agent,
		AgentCardURL: sess.agent.CardURL,
		Model:        sess.agent.Model,
		ContextID:    contextID,
	}, renderer.Update)
	renderer.Finish()
	return err
}

// HistoryCmd prints the stored conversation, rehydrated from task history.
type HistoryCmd struct {
	Agent   string `arg:"" help:"Agent id from the config."`
	Context string `help:"Conversation context id."`
	JSON    bool   `help:"Print raw JSON instead of formatted text."`
}

func (c *HistoryCmd) Run(cli *CLI) error {
	cfg, err := setup(cli)
	if err != nil {
		return err
	}

	sess, err := openSession(cfg, c.Agent)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := signalContext()
	defer cancel()

	contextID := c.Context
	if contextID == "" {
		contextID = "chat-" + c.Agent
	}

	messages, err := sess.history.LoadConversation(ctx, c.Agent, contextID, sess.agent.CardURL)
	if err != nil {
		return err
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(messages)
	}

	for _, msg := range messages {
		fmt.Printf("[%s] %s\n", msg.Timestamp.Format(time.RFC3339), msg.Role)
		for _, block := range msg.ContentBlocks {
			printBlock(os.Stdout, block)
		}
		fmt.Println()
	}
	return nil
}

// ClearCmd deletes the stored conversation.
type ClearCmd struct {
	Agent   string `arg:"" help:"Agent id from the config."`
	Context string `help:"Conversation context id."`
}

func (c *ClearCmd) Run(cli *CLI) error {
	cfg, err := setup(cli)
	if err != nil {
		return err
	}

	sess, err := openSession(cfg, c.Agent)
	if err != nil {
		return err
	}
	defer sess.Close()

	contextID := c.Context
	if contextID == "" {
		contextID = "chat-" + c.Agent
	}

	if err := sess.history.ClearConversation(context.Background(), c.Agent, contextID); err != nil {
		return err
	}
	fmt.Printf("Cleared conversation for %s\n", c.Agent)
	return nil
}

// InspectCmd serves metrics and stored conversations over HTTP.
type InspectCmd struct {
	Port  int  `help:"Port to listen on." default:"9090"`
	Watch bool `help:"Reload config when the file changes."`
}

func (c *InspectCmd) Run(cli *CLI) error {
	cfg, err := setup(cli)
	if err != nil {
		return err
	}

	messageStore, err := store.NewSQLStoreFromConfig(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open message store: %w", err)
	}
	defer messageStore.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if c.Watch {
		changes, err := config.Watch(ctx, cli.Config)
		if err != nil {
			return err
		}
		go func() {
			for range changes {
				reloaded, err := config.Load(cli.Config)
				if err != nil {
					slog.Error("Config reload failed", "error", err)
					continue
				}
				cfg = reloaded
				slog.Info("Config reloaded", "path", cli.Config)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/agents", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cfg.Agents)
	})
	r.Get("/conversations/{agent}", func(w http.ResponseWriter, req *http.Request) {
		agentID := chi.URLParam(req, "agent")
		contextID := req.URL.Query().Get("context")
		if contextID == "" {
			contextID = "chat-" + agentID
		}
		messages, err := messageStore.LoadMessages(req.Context(), agentID, contextID, "")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messages)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Inspect server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentchat"),
		kong.Description("agentchat - A2A streaming chat console"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
