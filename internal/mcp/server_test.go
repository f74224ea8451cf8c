package mcp

import (
	"context"
	"sort"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/szaher/versailles/internal/testutil"
	"github.com/szaher/versailles/internal/tools"
)

func connect(t *testing.T) (*mcpsdk.ClientSession, *tools.Registry) {
	t.Helper()
	reg, err := tools.NewDefaultRegistry(tools.Config{}, tools.NewDesk())
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	srv := NewServer(reg, "test", WithLogger(testutil.Logger()))

	ctx := context.Background()
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs, reg
}

func callText(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError {
		t.Fatalf("CallTool(%s) flagged as error", name)
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestServer_ListsEveryTool(t *testing.T) {
	cs, reg := connect(t)

	var got []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
		got = append(got, tool.Name)
	}
	sort.Strings(got)

	want := reg.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", got, want)
	}
}

func TestServer_CallTool(t *testing.T) {
	cs, _ := connect(t)

	got := callText(t, cs, "check_ticket_availability", map[string]any{"date": "2026-06-02", "tickets": 2})
	want := "Billets disponibles le 2026-06-02 (Passeport (Château, Trianon et jardins)) : 200 place(s) restante(s), 32,00 € par personne, 64,00 € pour 2 billet(s)."
	if got != want {
		t.Errorf("result = %q\nwant     %q", got, want)
	}
}

func TestServer_FailuresAreText(t *testing.T) {
	cs, _ := connect(t)

	got := callText(t, cs, "check_ticket_availability", map[string]any{"date": "2026-06-01"})
	if !strings.Contains(got, "fermé le lundi") {
		t.Errorf("monday = %q", got)
	}

	got = callText(t, cs, "book_versailles_tickets", map[string]any{"date": "2026-06-02", "tickets": 50, "name": "Ana"})
	if !strings.Contains(got, "tickets doit être entre 1 et 20") {
		t.Errorf("rule violation = %q", got)
	}
}
