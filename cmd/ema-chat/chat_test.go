package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/koscakluka/ema-chat/core/events"
	"github.com/koscakluka/ema-chat/core/pacing"
)

func TestTerminalPrinterPrintsOnlyStableLines(t *testing.T) {
	var out bytes.Buffer
	printer := newTerminalPrinter(&out, 12)

	printer.handle(events.NewAssistantResponseStarted("msg_1", 1))
	printer.handle(events.NewAssistantResponseUpdated("msg_1", string(pacing.ChannelText), "hello there ", "hello there ", ""))
	if out.Len() != 0 {
		t.Fatalf("expected the open line to be held back, got %q", out.String())
	}

	printer.handle(events.NewAssistantResponseUpdated("msg_1", string(pacing.ChannelText), "general", "hello there general", ""))
	if got := out.String(); got != "hello there\n" {
		t.Fatalf("expected only the first wrapped line, got %q", got)
	}

	printer.handle(events.NewAssistantResponseFinal("msg_1", "hello there general kenobi", "", 0))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[1] != "general" || lines[2] != "kenobi" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestTerminalPrinterShowsToolAndReasoningStatus(t *testing.T) {
	var out bytes.Buffer
	printer := newTerminalPrinter(&out, 80)

	printer.handle(events.NewAssistantResponseStarted("msg_1", 1))
	printer.handle(events.NewAssistantResponseUpdated("msg_1", string(pacing.ChannelReasoning), "hm", "", "hm"))
	printer.handle(events.NewAssistantResponseUpdated("msg_1", string(pacing.ChannelReasoning), "m", "", "hmm"))
	printer.handle(events.NewToolCallStatus("call_1", "web_search", events.ToolPhaseUtilizing))
	printer.handle(events.NewTurnCancelled())

	want := "(thinking)\n  [utilizing tool: web_search]\n(cancelled)\n"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}
