// Package skanctl is the operator CLI for a running AgentSkan server.
package skanctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/okian/agentskan/pkg/logger"
	"github.com/spf13/cobra"
)

const (
	defaultBaseURL = "http://localhost:9080"
	defaultTimeout = 60 * time.Second
	defaultLimit   = 20
)

type rootFlags struct {
	baseURL  string
	timeout  time.Duration
	jsonOut  bool
	logLevel string
}

// NewRootCommand builds the skanctl command tree.
func NewRootCommand() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "skanctl",
		Short:         "Operate an AgentSkan server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithLevel(f.logLevel))
		},
	}
	root.PersistentFlags().StringVar(&f.baseURL, "url", defaultBaseURL, "base URL of the server")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", defaultTimeout, "per-request timeout")
	root.PersistentFlags().BoolVar(&f.jsonOut, "json", false, "print raw JSON")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newScanCommand(f),
		newListCommand(f),
		newStatsCommand(f),
		newBatchCommand(f),
	)
	return root
}

func (f *rootFlags) client() *Client {
	return NewClient(f.baseURL, f.timeout)
}

func newScanCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <repo-url>",
		Short: "Scan one repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.client().Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if f.jsonOut {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "%s\n", res.RepoURL)
			fmt.Fprintf(out, "score:       %d (%s risk)\n", res.Score, res.RiskLevel)
			fmt.Fprintf(out, "stars/forks: %d/%d\n", res.Repo.Stars, res.Repo.Forks)
			fmt.Fprintf(out, "persistence: %s", res.Persistence.Outcome)
			if res.Persistence.ID != "" {
				fmt.Fprintf(out, " (%s)", res.Persistence.ID)
			}
			fmt.Fprintln(out)
			for _, fl := range res.Flags {
				fmt.Fprintf(out, "  [%s] %s: %s\n", fl.Severity, fl.Category, fl.Message)
			}
			return nil
		},
	}
}

func newListCommand(f *rootFlags) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := f.client().List(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if f.jsonOut {
				return printJSON(out, page)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tREPO\tSCORE\tRISK\tSCANNED")
			for _, s := range page.Scans {
				fmt.Fprintf(tw, "%s\t%s/%s\t%d\t%s\t%s\n",
					s.ID, s.Owner, s.RepoName, s.Score, s.RiskLevel, s.ScannedAt.Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d shown, %d scanned in total, more: %t\n", len(page.Scans), page.Total, page.HasMore)
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	cmd.Flags().IntVar(&limit, "limit", defaultLimit, "entries to return")
	return cmd
}

func newStatsCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the lifetime scan count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := f.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if f.jsonOut {
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total scans: %d\n", st.TotalScans)
			return nil
		},
	}
}

func newBatchCommand(f *rootFlags) *cobra.Command {
	var (
		file    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan every reference in a file and verify the ledger",
		Long: "Reads one repository reference per line (# starts a comment), scans them\n" +
			"concurrently, then pages through the ledger to check every persisted scan.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				fh, err := os.Open(file)
				if err != nil {
					return err
				}
				defer fh.Close()
				r = fh
			}
			refs, err := ReadRefs(r)
			if err != nil {
				return err
			}

			rep, runErr := RunBatch(cmd.Context(), f.client(), refs, workers)
			if rep == nil {
				return runErr
			}
			out := cmd.OutOrStdout()
			if f.jsonOut {
				if err := printJSON(out, batchSummary(rep)); err != nil {
					return err
				}
				return runErr
			}
			for _, o := range rep.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(out, "FAIL  %s: %v\n", o.Ref, o.Err)
				}
			}
			fmt.Fprintf(out, "submitted %d: %d ok, %d failed\n", len(rep.Outcomes), rep.Succeeded, rep.Failed)
			fmt.Fprintf(out, "persisted %d, queued %d, verified %d\n", rep.Persisted, rep.Queued, rep.Verified)
			fmt.Fprintf(out, "lifetime %d -> %d in %s\n", rep.LifetimeBefore, rep.LifetimeAfter, rep.Duration.Round(time.Millisecond))
			return runErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file of references, - for stdin")
	cmd.Flags().IntVarP(&workers, "workers", "w", defaultBatchWorkers, "concurrent scans")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type summary struct {
	Submitted      int      `json:"submitted"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	Persisted      int      `json:"persisted"`
	Queued         int      `json:"queued"`
	Verified       int      `json:"verified"`
	Missing        []string `json:"missing,omitempty"`
	LifetimeBefore int64    `json:"lifetimeBefore"`
	LifetimeAfter  int64    `json:"lifetimeAfter"`
	DurationMS     int64    `json:"durationMs"`
}

func batchSummary(rep *Report) summary {
	return summary{
		Submitted:      len(rep.Outcomes),
		Succeeded:      rep.Succeeded,
		Failed:         rep.Failed,
		Persisted:      rep.Persisted,
		Queued:         rep.Queued,
		Verified:       rep.Verified,
		Missing:        rep.Missing,
		LifetimeBefore: rep.LifetimeBefore,
		LifetimeAfter:  rep.LifetimeAfter,
		DurationMS:     rep.Duration.Milliseconds(),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
