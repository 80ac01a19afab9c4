// tracectl explores persisted arena traces: recent errors, operation
// performance, slow operations, agent behavior and full trace chains.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arenalab/tracekit/internal/analysis"
	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/query"
)

var (
	traceDir   string
	configFile string
	hours      int
)

func main() {
	root := &cobra.Command{
		Use:           "tracectl",
		Short:         "Analyze arena trace logs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("trace-dir") {
				traceDir = cfg.TraceDir
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&traceDir, "trace-dir", "trace", "Trace root directory")
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML pipeline config file")
	root.PersistentFlags().IntVar(&hours, "hours", 24, "Hours of history to analyze")

	root.AddCommand(
		errorsCmd(),
		traceCmd(),
		performanceCmd(),
		slowCmd(),
		agentCmd(),
		summaryCmd(),
		tailCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func window() time.Duration {
	return time.Duration(hours) * time.Hour
}

func errorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "Show recent errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := analysis.New(traceDir).Errors(window())
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Error Analysis (Last %d hours) ===\n\n", hours)
			fmt.Printf("Total Errors: %d\n\n", report.Total)

			if len(report.ByComponent) > 0 {
				fmt.Println("Errors by Component:")
				for _, kv := range analysis.TopCounts(report.ByComponent, 10) {
					fmt.Printf("  %s: %d\n", kv.Key, kv.Count)
				}
				fmt.Println()
			}
			if len(report.ByErrorType) > 0 {
				fmt.Println("Errors by Type:")
				for _, kv := range analysis.TopCounts(report.ByErrorType, 10) {
					fmt.Printf("  %s: %d\n", kv.Key, kv.Count)
				}
				fmt.Println()
			}
			if len(report.Recent) > 0 {
				fmt.Println("Most Recent Errors:")
				for _, e := range report.Recent {
					fmt.Printf("  [%s] %s\n", e.Timestamp.Format(time.RFC3339), e.Component)
					fmt.Printf("    Event: %s\n", e.Event)
					fmt.Printf("    Message: %s\n\n", e.Message)
				}
			}
			return nil
		},
	}
}

func traceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <trace-id>",
		Short: "Follow one trace id through the system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := query.NewReader(traceDir).TraceChain(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Trace: %s ===\n\n", args[0])
			if len(records) == 0 {
				fmt.Println("No records found for this trace ID")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("[%s] %s\n", rec.Timestamp.Format(time.RFC3339), rec.Component)
				fmt.Printf("  Event: %s\n", rec.Event)
				fmt.Printf("  Message: %s\n", rec.Message)
				if len(rec.Data) > 0 {
					fmt.Printf("  Data: %v\n", rec.Data)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func performanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance <operation>",
		Short: "Analyze operation durations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := analysis.New(traceDir).Performance(args[0], window())
			if errors.Is(err, analysis.ErrNoSamples) {
				fmt.Println("No performance data found")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Performance Analysis: %s ===\n\n", stats.Operation)
			fmt.Printf("Total Executions: %d\n", stats.Count)
			fmt.Printf("Min Duration: %.3fs\n", stats.Min)
			fmt.Printf("Max Duration: %.3fs\n", stats.Max)
			fmt.Printf("Avg Duration: %.3fs\n", stats.Mean)
			fmt.Printf("Median Duration: %.3fs\n", stats.Median)
			if stats.P95 != nil {
				fmt.Printf("P95 Duration: %.3fs\n", *stats.P95)
			}
			if stats.P99 != nil {
				fmt.Printf("P99 Duration: %.3fs\n", *stats.P99)
			}
			return nil
		},
	}
}

func slowCmd() *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "slow",
		Short: "Find operations exceeding a duration threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			slow, err := analysis.New(traceDir).SlowOperations(threshold, window())
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Slow Operations (>%.1fs, Last %d hours) ===\n\n", threshold, hours)
			if len(slow) == 0 {
				fmt.Println("No slow operations found")
				return nil
			}
			for i, op := range slow {
				if i == 20 {
					break
				}
				fmt.Printf("[%s] %s\n", op.Timestamp.Format(time.RFC3339), op.Component)
				fmt.Printf("  Operation: %s\n", op.Operation)
				fmt.Printf("  Duration: %.3fs\n", op.DurationSeconds)
				fmt.Printf("  Trace ID: %s\n\n", op.TraceID)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 1.0, "Duration threshold in seconds")
	return cmd
}

func agentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent <agent-id>",
		Short: "Analyze one agent's behavior",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := analysis.New(traceDir).AgentBehavior(args[0], window())
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Agent Analysis: %s ===\n\n", report.AgentID)
			fmt.Printf("Total Records: %d\n\n", report.Total)

			if len(report.Actions) > 0 {
				fmt.Println("Actions Taken:")
				for _, kv := range analysis.TopCounts(report.Actions, 10) {
					fmt.Printf("  %s: %d\n", kv.Key, kv.Count)
				}
				fmt.Println()
			}
			if len(report.StrategyChanges) > 0 {
				fmt.Println("Strategy Changes:")
				for _, sc := range report.StrategyChanges {
					fmt.Printf("  [%s] %s -> %s (%s)\n",
						sc.Timestamp.Format(time.RFC3339), sc.OldStrategy, sc.NewStrategy, sc.Reason)
				}
				fmt.Println()
			}
			if len(report.LearningEvents) > 0 {
				fmt.Println("Learning Events:")
				for _, le := range report.LearningEvents {
					fmt.Printf("  [%s] %s %v\n", le.Timestamp.Format(time.RFC3339), le.Event, le.Improvement)
				}
			}
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the system summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := analysis.New(traceDir).SummaryReport(window())
			if err != nil {
				return err
			}
			fmt.Println(report)
			return nil
		},
	}
}

func tailCmd() *cobra.Command {
	var (
		category  string
		component string
		lines     int
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent records for a pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := query.NewReader(traceDir).Records(query.Filter{
				Category:  category,
				Component: component,
			})
			if err != nil {
				return err
			}
			if len(records) > lines {
				records = records[len(records)-lines:]
			}
			for _, rec := range records {
				fmt.Printf("[%s] %s %s/%s %s: %s\n",
					rec.Timestamp.Format(time.RFC3339), rec.Level,
					rec.Category, rec.Component, rec.Event, rec.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Category to tail")
	cmd.Flags().StringVar(&component, "component", "", "Component to tail")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of records to show")
	return cmd
}
