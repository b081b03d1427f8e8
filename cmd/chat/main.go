// agentdesk chat - terminal client for the agentdesk server
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ashureev/agentdesk/internal/session"
	"github.com/spf13/cobra"
)

var (
	serverURL      string
	agentID        string
	principal      string
	identityHeader string
	historyLimit   int
)

var rootCmd = &cobra.Command{
	Use:   "agentdesk-chat",
	Short: "Chat with agentdesk agents from the terminal",
	Long: `agentdesk-chat streams replies from an agentdesk server.

Commands inside the session:
  /agents          list available agents
  /agent <id>      switch agent and reload its history
  /file <path>     send a text document for analysis
  /history         print the displayed conversation
  /quit            exit`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "agentdesk server URL")
	rootCmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (server default when empty)")
	rootCmd.Flags().StringVarP(&principal, "user", "u", "", "authenticated user id, asserted through the identity header")
	rootCmd.Flags().StringVar(&identityHeader, "identity-header", "X-Authenticated-User", "header carrying the authenticated user")
	rootCmd.Flags().IntVar(&historyLimit, "history-limit", 50, "turns to reload on agent switch")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	var opts []session.TransportOption
	if principal != "" {
		opts = append(opts, session.WithPrincipal(identityHeader, principal))
	}
	transport, err := session.NewHTTPTransport(serverURL, opts...)
	if err != nil {
		return err
	}

	agents, err := transport.Agents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if agentID == "" {
		agentID = agents.DefaultAgentID
	}

	ctrl := session.NewController(transport, agentID, principal != "",
		session.WithHistoryLimit(historyLimit),
		session.WithEventHandler(printEvent(out)),
	)
	if err := ctrl.SwitchAgent(ctx, agentID); err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}
	fmt.Fprintf(out, "Connected to %s as agent %q. Type /quit to exit.\n", serverURL, ctrl.AgentID())
	printMessages(out, ctrl)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := handleLine(ctx, out, transport, ctrl, line)
		if err != nil {
			fmt.Fprintf(out, "\n! %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func handleLine(ctx context.Context, out io.Writer, transport *session.HTTPTransport, ctrl *session.Controller, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/agents":
		list, err := transport.Agents(ctx)
		if err != nil {
			return false, err
		}
		for _, a := range list.Agents {
			marker := " "
			if a.ID == ctrl.AgentID() {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-20s %s\n", marker, a.ID, a.Description)
		}
		return false, nil
	case "/agent":
		if arg == "" {
			return false, fmt.Errorf("usage: /agent <id>")
		}
		err := ctrl.SwitchAgent(ctx, arg)
		printMessages(out, ctrl)
		return false, err
	case "/history":
		printMessages(out, ctrl)
		return false, nil
	case "/file":
		data, err := os.ReadFile(arg)
		if err != nil {
			return false, err
		}
		_, err = ctrl.SendDocument(ctx, filepath.Base(arg), string(data))
		fmt.Fprintln(out)
		return false, err
	default:
		_, err := ctrl.Send(ctx, line, "")
		fmt.Fprintln(out)
		return false, err
	}
}

func printEvent(out io.Writer) func(session.Event) {
	return func(ev session.Event) {
		switch ev.Type {
		case session.EventContentDelta:
			var d struct {
				Delta string `json:"delta"`
			}
			if json.Unmarshal(ev.Data, &d) == nil {
				fmt.Fprint(out, d.Delta)
			}
		case session.EventToolCall, session.EventToolResult:
			fmt.Fprintf(out, "\n[%s] %s\n", ev.Type, ev.Data)
		}
	}
}

func printMessages(out io.Writer, ctrl *session.Controller) {
	for _, m := range ctrl.Messages() {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
	}
}
