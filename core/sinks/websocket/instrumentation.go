package websocket

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-chat/core/sinks/websocket"

var logger = otelslog.NewLogger(scopeName)
