package tools

import (
	"context"
	"errors"
	"testing"
)

type echoParameters struct {
	Text string `json:"text" jsonschema:"description=Text to echo"`
}

func echoTool(name string) Tool {
	return NewFunctionTool(name, "echoes text", func(_ context.Context, p echoParameters) (string, error) {
		return p.Text, nil
	})
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry, err := NewRegistry(echoTool("echo"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := registry.Register(echoTool("echo")); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
	if err := registry.Register(echoTool("")); !errors.Is(err, ErrToolNameEmpty) {
		t.Fatalf("expected ErrToolNameEmpty, got %v", err)
	}
}

func TestRegistryExternalTools(t *testing.T) {
	registry, _ := NewRegistry(echoTool("echo"))

	if err := registry.RegisterExternal("files", echoTool("files_read"), echoTool("files_list")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registry.Resolve("files_read") == nil {
		t.Fatalf("expected external tool to resolve")
	}

	err := registry.RegisterExternal("files", echoTool("files_read"), echoTool("echo"))
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected clash with built-in tool, got %v", err)
	}
	if registry.Resolve("files_list") != nil {
		t.Fatalf("expected replaced external tool to be gone")
	}
	if registry.Resolve("echo") == nil || registry.Resolve("files_read") == nil {
		t.Fatalf("expected built-in and re-registered tools to remain")
	}

	registry.RemoveExternal("files")
	if registry.Resolve("files_read") != nil {
		t.Fatalf("expected external tools to be removed")
	}
	if len(registry.Sources()) != 0 {
		t.Fatalf("expected no sources, got %v", registry.Sources())
	}
}

func TestRegistrySchemasSortedByName(t *testing.T) {
	registry, _ := NewRegistry(echoTool("zeta"), echoTool("alpha"), echoTool("mid"))
	schemas := registry.Schemas()
	want := []string{"alpha", "mid", "zeta"}
	if len(schemas) != len(want) {
		t.Fatalf("expected %d schemas, got %d", len(want), len(schemas))
	}
	for i, name := range want {
		if schemas[i].Name != name {
			t.Fatalf("expected %v order, got %+v", want, schemas)
		}
	}
}

func TestNilRegistryResolvesNothing(t *testing.T) {
	var registry *Registry
	if registry.Resolve("anything") != nil || registry.Schemas() != nil {
		t.Fatalf("expected nil registry to be empty")
	}
}
