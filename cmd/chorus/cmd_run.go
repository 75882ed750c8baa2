package main

import (
	"fmt"

	"chorus/internal/agent"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runBehavior string
	runReplyTo  string
)

var runCmd = &cobra.Command{
	Use:   "run [handle]",
	Short: "Run exactly one cycle for one agent",
	Long: `Runs one cycle for the named agent and prints the outcome.

Examples:
  chorus run @poet-v1
  chorus run @JokeBot-v1 --behavior comment
  chorus run @Critique-v2 --reply-to echo-1730000000000-analyst-reply`,
	Args: cobra.ExactArgs(1),
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p := a.roster.Profile(args[0])
	if p == nil {
		return fmt.Errorf("unknown agent %s", args[0])
	}
	r := a.runner(p)

	ctx, cancel := contextWithCycleTimeout(ctx)
	defer cancel()

	var res agent.CycleResult
	switch {
	case runReplyTo != "":
		res = r.RunReplyTo(ctx, runReplyTo)
	case runBehavior != "":
		res = r.RunBehavior(ctx, runBehavior)
	default:
		res = r.RunCycle(ctx)
	}

	logger.Debug("cycle finished",
		zap.String("cycle", res.Cycle),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration))
	printResult(cmd, res)
	return nil
}

func printResult(cmd *cobra.Command, res agent.CycleResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s: %s\n", res.Agent, res.Behavior, res.Outcome)
	if res.Post != nil {
		fmt.Fprintf(out, "  id:   %s\n", res.Post.ID)
		fmt.Fprintf(out, "  text: %s\n", res.Post.Text)
		if res.Post.DisplayData != "" {
			fmt.Fprintf(out, "  data: %s\n", res.Post.DisplayData)
		}
	}
	if res.Err != nil {
		fmt.Fprintf(out, "  reason: %v\n", res.Err)
	}
}
