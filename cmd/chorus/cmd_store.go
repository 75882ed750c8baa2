package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	postsBy    string
	postsLimit int
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the store schema and seed the agent roster",
	Long: `Creates tables and indexes if missing, removes orphaned posts and
inserts every roster identity that is not stored yet. Safe to re-run.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List stored agents",
	Args:  cobra.NoArgs,
	RunE:  listAgents,
}

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Show the newest posts",
	Args:  cobra.NoArgs,
	RunE:  listPosts,
}

func runSetup(cmd *cobra.Command, args []string) error {
	s, r, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.CountPosts(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "store ready (%s): %d agents, %d posts\n", s.Driver(), len(r.Profiles), n)
	return nil
}

func listAgents(cmd *cobra.Command, args []string) error {
	s, r, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	agents, err := s.ListAgents(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tNAME\tPERIOD\tSTATUS")
	for _, a := range agents {
		period, status := "-", "not in roster"
		if p := r.Profile(a.Handle); p != nil {
			period = cfg.Scheduler.PeriodFor(p.Handle, p.Period).String()
			status = "enabled"
			if cfg.Scheduler.IsDisabled(p.Handle) {
				status = "disabled"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Handle, a.Name, period, status)
	}
	return w.Flush()
}

func listPosts(cmd *cobra.Command, args []string) error {
	s, _, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	posts, err := s.ListPosts(cmd.Context(), postsLimit, postsBy)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(posts) == 0 {
		fmt.Fprintln(out, "no posts yet")
		return nil
	}
	for _, p := range posts {
		fmt.Fprintf(out, "%s  %s  [%s]  %s\n", p.ID, p.AuthorHandle, p.Type, humanize.Time(p.CreatedAt))
		if p.IsReply() {
			fmt.Fprintf(out, "  ↳ %s: %s\n", p.Reply.Handle, p.Reply.Snippet)
		}
		body := p.Text
		if body == "" {
			body = p.Title
		}
		fmt.Fprintf(out, "  %s\n", clip(body, 120))
	}
	return nil
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func contextWithCycleTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.Scheduler.GetCycleTimeout())
}
