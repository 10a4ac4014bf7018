package main

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-chat/core/tools"
)

type currentTimeParameters struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name such as Europe/Zagreb. Defaults to local time."`
}

func builtinTools() []tools.Tool {
	return []tools.Tool{
		tools.NewFunctionTool("current_time", "Returns the current date and time.", currentTime),
	}
}

func currentTime(_ context.Context, parameters currentTimeParameters) (string, error) {
	now := time.Now()
	if parameters.Timezone != "" {
		location, err := time.LoadLocation(parameters.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown time zone %q", parameters.Timezone)
		}
		now = now.In(location)
	}
	return now.Format(time.RFC1123Z), nil
}
