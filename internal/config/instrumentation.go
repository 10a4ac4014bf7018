package config

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-chat/internal/config"

var logger = otelslog.NewLogger(scopeName)
