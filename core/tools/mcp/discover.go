package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-chat/core/tools"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentDiscovery = 4

type Server struct {
	Name string
	URL  string
}

// Discover connects to every server concurrently and registers their tools
// with registry under the server name. A failing server does not stop the
// others; all failures are returned joined.
func Discover(ctx context.Context, registry *tools.Registry, servers []Server, opts ...ClientOption) ([]*Client, error) {
	clients := make([]*Client, len(servers))
	failures := make([]error, len(servers))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentDiscovery)
	for i, server := range servers {
		group.Go(func() error {
			client := NewClient(server.Name, server.URL, opts...)
			if err := client.Initialize(ctx); err != nil {
				failures[i] = err
				return nil
			}
			infos, err := client.ListTools(ctx)
			if err != nil {
				failures[i] = err
				return nil
			}

			remote := make([]tools.Tool, 0, len(infos))
			for _, info := range infos {
				remote = append(remote, NewTool(client, info))
			}
			if err := registry.RegisterExternal(server.Name, remote...); err != nil {
				failures[i] = fmt.Errorf("server %s: %w", server.Name, err)
			}
			clients[i] = client
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	connected := make([]*Client, 0, len(clients))
	for _, client := range clients {
		if client != nil {
			connected = append(connected, client)
		}
	}
	err := errors.Join(failures...)
	if err != nil {
		logger.Warn("some mcp servers could not be used", "error", err)
	}
	return connected, err
}
