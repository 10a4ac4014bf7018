package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-chat/core"
	"github.com/koscakluka/ema-chat/core/events"
	"github.com/koscakluka/ema-chat/core/pacing"
	"github.com/koscakluka/ema-chat/internal/config"
)

func newChatCommand() *cobra.Command {
	var (
		width          int
		conversationID string
		instructions   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model in the terminal",
		Long: `Starts an interactive chat. Each line is sent as one turn.
Ctrl-C cancels the running turn; a second Ctrl-C exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), os.Stdin, cmd.OutOrStdout(), chatOptions{
				width:          width,
				conversationID: conversationID,
				instructions:   instructions,
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 80, "column at which responses are wrapped")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "resume the conversation with this ID")
	cmd.Flags().StringVar(&instructions, "instructions", "", "system instructions for a new conversation")
	return cmd
}

type chatOptions struct {
	width          int
	conversationID string
	instructions   string
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	printer := newTerminalPrinter(out, opts.width)
	a, err := newApp(ctx, cfg, printer.handle)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	conversationID := opts.conversationID
	if conversationID == "" {
		conversation, err := a.orchestrator.NewConversation(ctx, "Terminal chat", opts.instructions)
		if err != nil {
			return err
		}
		conversationID = conversation.ID
		fmt.Fprintf(out, "conversation %s\n", conversationID)
	} else if _, err := a.orchestrator.Store().Load(ctx, conversationID); err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")

		var line string
		select {
		case next, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(next)
		case <-interrupts:
			fmt.Fprintln(out)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		if line == "" {
			continue
		}

		if exit := runInteractiveTurn(ctx, a.orchestrator, conversationID, line, interrupts, out); exit {
			return nil
		}
	}
}

// runInteractiveTurn runs one turn and reports whether the user asked to
// exit while it was running.
func runInteractiveTurn(ctx context.Context, o *orchestration.Orchestrator, conversationID, text string, interrupts <-chan os.Signal, out io.Writer) bool {
	type outcome struct {
		result orchestration.TurnResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.RunTurn(ctx, conversationID, orchestration.UserInput{Text: text})
		done <- outcome{result: result, err: err}
	}()

	cancelled := false
	for {
		select {
		case finished := <-done:
			if finished.err != nil && !errors.Is(finished.err, context.Canceled) {
				fmt.Fprintf(out, "turn failed: %v\n", finished.err)
			}
			return false

		case <-interrupts:
			if cancelled {
				<-done
				return true
			}
			cancelled = true
			o.CancelTurn(conversationID)
		}
	}
}

// terminalPrinter prints paced responses word-wrapped. Only wrapped lines that
// can no longer change are printed until the response is final.
type terminalPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	width int

	text     string
	printed  int
	thinking bool
}

func newTerminalPrinter(out io.Writer, width int) *terminalPrinter {
	if width <= 0 {
		width = 80
	}
	return &terminalPrinter{out: out, width: width}
}

func (p *terminalPrinter) handle(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := event.(type) {
	case events.AssistantResponseStarted:
		p.text, p.printed, p.thinking = "", 0, false

	case events.AssistantResponseUpdated:
		if e.Channel == string(pacing.ChannelReasoning) {
			if !p.thinking {
				p.thinking = true
				fmt.Fprintln(p.out, "(thinking)")
			}
			return
		}
		p.text = e.Text
		p.flush(false)

	case events.AssistantResponseFinal:
		p.text = e.Text
		p.flush(true)

	case events.TurnCancelled:
		p.flush(true)
		fmt.Fprintln(p.out, "(cancelled)")

	case events.TurnFailed:
		p.flush(true)

	case events.ToolCallStatus:
		fmt.Fprintf(p.out, "  [%s]\n", e.Description())

	case events.SourcesAdded:
		fmt.Fprintf(p.out, "  [%d sources]\n", e.Count)

	case events.AttachmentRejected:
		fmt.Fprintf(p.out, "  [%s dropped: %s]\n", e.AttachmentKind, e.Reason)
	}
}

func (p *terminalPrinter) flush(final bool) {
	if p.text == "" {
		return
	}
	lines := strings.Split(wordwrap.String(p.text, p.width), "\n")
	stable := len(lines) - 1
	if final {
		stable = len(lines)
	}
	for ; p.printed < stable; p.printed++ {
		fmt.Fprintln(p.out, lines[p.printed])
	}
}
