package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	orchestration "github.com/koscakluka/ema-chat/core"
	"github.com/koscakluka/ema-chat/core/sinks/websocket"
	"github.com/koscakluka/ema-chat/internal/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var (
		addr         string
		allowOrigins bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve conversation events to websocket clients",
		Long: `Serves a websocket endpoint at /ws. Every orchestrator event is broadcast
to connected clients as JSON, and clients send {"type":"prompt"} and
{"type":"cancel"} commands to drive turns.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr, allowOrigins)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "address to listen on")
	cmd.Flags().BoolVar(&allowOrigins, "allow-any-origin", false, "accept websocket connections from any origin")
	return cmd
}

func runServe(ctx context.Context, addr string, allowOrigins bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	controller := &turnController{}
	var hubOpts []websocket.HubOption
	if allowOrigins {
		hubOpts = append(hubOpts, websocket.WithCheckOrigin(func(*http.Request) bool { return true }))
	}
	hub := websocket.NewHub(controller, hubOpts...)

	a, err := newApp(ctx, cfg, hub.Handle)
	if err != nil {
		return err
	}
	controller.orchestrator = a.orchestrator

	mux := http.NewServeMux()
	mux.Handle("/ws", otelhttp.NewHandler(hub, "websocket"))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("serving websocket clients", "addr", addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(
		err,
		server.Shutdown(shutdownCtx),
		a.Close(shutdownCtx),
		hub.Close(),
	)
}

// turnController runs websocket prompts as orchestrator turns. A prompt
// without a conversation ID starts a new conversation.
type turnController struct {
	orchestrator *orchestration.Orchestrator
}

func (c *turnController) Prompt(ctx context.Context, conversationID, text string) error {
	if conversationID == "" {
		conversation, err := c.orchestrator.NewConversation(ctx, "Websocket chat", "")
		if err != nil {
			return fmt.Errorf("failed to start conversation: %w", err)
		}
		conversationID = conversation.ID
	}
	_, err := c.orchestrator.RunTurn(ctx, conversationID, orchestration.UserInput{Text: text})
	return err
}

func (c *turnController) Cancel(conversationID string) bool {
	return c.orchestrator.CancelTurn(conversationID)
}
