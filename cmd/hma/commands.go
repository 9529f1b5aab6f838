package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"hma/internal/core/exchange"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
	banksdom "hma/internal/services/banks/domain"
	xdom "hma/internal/services/exchanges/domain"
	idom "hma/internal/services/indexer/domain"
)

// ports are what the commands drive; tests swap in fakes
type ports struct {
	banks     banksdom.ServicePort
	exchanges xdom.ServicePort
	runner    xdom.RunnerPort
	builder   idom.BuilderPort
	indexes   idom.StorePort
	signals   *signal.Registry
	apis      *exchange.Registry
	migrate   func(ctx context.Context) error
}

type opener func(ctx context.Context) (*ports, func(), error)

// cli opens the ports for the one command an invocation runs
type cli struct {
	open opener
}

// runE opens the ports around fn and marks any unmarked error as a runtime failure
func (c *cli) runE(fn func(cmd *cobra.Command, args []string, p *ports) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, closeFn, err := c.open(cmd.Context())
		if err == nil {
			err = fn(cmd, args, p)
			closeFn()
		}
		if err == nil {
			return nil
		}
		var ee *exitError
		if errors.As(err, &ee) {
			return err
		}
		return &exitError{code: 1, err: err}
	}
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "hma",
		Short:         "Operate the hash matching service: fetch exchanges, build indices, seed data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: 2, err: err}
	})
	root.AddCommand(
		fetchCmd(c),
		buildCmd(c),
		seedCmd(c),
		authCmd(c),
		statusCmd(c),
		migrateCmd(c),
	)
	return root
}

func fetchCmd(c *cli) *cobra.Command {
	var (
		collab     string
		clearFirst bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch cycle for every enabled exchange, or for --collab",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, _ []string, p *ports) error {
			if clearFirst && collab == "" {
				return usageErr("--clear needs --collab")
			}
			ctx := cmd.Context()
			var results []xdom.CycleResult
			if collab != "" {
				if clearFirst {
					if err := p.runner.Clear(ctx, collab); err != nil {
						return err
					}
				}
				r, err := p.runner.FetchOne(ctx, collab)
				if err != nil {
					return err
				}
				results = []xdom.CycleResult{r}
			} else {
				var err error
				if results, err = p.runner.FetchAll(ctx); err != nil {
					return err
				}
			}
			return printCycles(cmd.OutOrStdout(), results)
		}),
	}
	cmd.Flags().StringVar(&collab, "collab", "", "only this exchange, enabled or not")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "drop the checkpoint and fetched content of --collab first")
	return cmd
}

func printCycles(out io.Writer, results []xdom.CycleResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLAB\tOUTCOME\tUPSERTS\tDELETES\tUP_TO_DATE\tTOOK\tREASON")
	var failed []string
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%s\t%s\n", r.Collab, r.Outcome, r.Upserts, r.Deletes, r.UpToDate, r.Took.Round(time.Millisecond), r.Reason)
		if r.Outcome == xdom.OutcomeFailed {
			failed = append(failed, r.Collab)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return partialErr("fetch failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

func buildCmd(c *cli) *cobra.Command {
	var (
		types []string
		force bool
	)
	cmd := &cobra.Command{
		Use:     "build-indices",
		Aliases: []string{"build_indices"},
		Short:   "Build the index of every enabled signal type whose bank content changed",
		Args:    cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, _ []string, p *ports) error {
			if len(types) == 0 {
				types = p.signals.Names()
			}
			for _, t := range types {
				if _, ok := p.signals.Signal(t); !ok {
					return usageErr("unknown signal type %q", t)
				}
			}
			results, err := buildConcurrently(cmd.Context(), p.builder, types, force)
			if err != nil {
				return err
			}
			return printBuilds(cmd.OutOrStdout(), results)
		}),
	}
	cmd.Flags().StringSliceVar(&types, "signal-type", nil, "only these signal types")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even when nothing changed")
	return cmd
}

// buildConcurrently builds each type on its own goroutine. A failed build is
// reported in its result; only a cancelled ctx aborts the whole run
func buildConcurrently(ctx context.Context, b idom.BuilderPort, types []string, force bool) ([]idom.BuildResult, error) {
	var (
		mu  sync.Mutex
		out = make([]idom.BuildResult, 0, len(types))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, t := range types {
		g.Go(func() error {
			res, err := b.Build(gctx, t, force)
			if err != nil && res.Outcome == "" {
				res = idom.BuildResult{SignalType: t, Outcome: idom.OutcomeFailed, Reason: err.Error()}
			}
			mu.Lock()
			out = append(out, res)
			mu.Unlock()
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalType < out[j].SignalType })
	return out, nil
}

func printBuilds(out io.Writer, results []idom.BuildResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNAL_TYPE\tOUTCOME\tSIGNALS\tBYTES\tTOOK\tREASON")
	var failed []string
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", r.SignalType, r.Outcome, r.Signals, r.Bytes, r.Took.Round(time.Millisecond), r.Reason)
		if r.Outcome == idom.OutcomeFailed {
			failed = append(failed, r.SignalType)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return partialErr("build failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

func authCmd(c *cli) *cobra.Command {
	var (
		fromStr string
		file    string
		unset   bool
	)
	cmd := &cobra.Command{
		Use:   "auth <api>",
		Short: "Store or clear the default credentials of an exchange api",
		Long: `Credentials are read from --from-str, from --file, or from the
environment variable <API>_CREDENTIALS, in that order. JSON and YAML are accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string, p *ports) error {
			api := args[0]
			if _, ok := p.apis.Get(api); !ok {
				return usageErr("no such api %q (have %s)", api, strings.Join(p.apis.Names(), ", "))
			}
			if !p.apis.SupportsAuth(api) {
				return usageErr("api %q doesn't take credentials", api)
			}

			ctx := cmd.Context()
			var (
				info xdom.APIInfo
				err  error
			)
			if unset {
				info, err = p.exchanges.UnsetCredentials(ctx, api)
			} else {
				var raw json.RawMessage
				if raw, err = readCredentials(api, fromStr, file); err != nil {
					return err
				}
				info, err = p.exchanges.SetCredentials(ctx, api, raw)
			}
			if perr.IsCode(err, perr.ErrorCodeValidation) || perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
				return &exitError{code: 2, err: err}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: has_set_auth=%t\n", info.Name, info.HasSetAuth)
			return nil
		}),
	}
	cmd.Flags().StringVar(&fromStr, "from-str", "", "credentials as a JSON or YAML string")
	cmd.Flags().StringVar(&file, "file", "", "read credentials from a JSON or YAML file")
	cmd.Flags().BoolVar(&unset, "unset", false, "clear the stored credentials")
	return cmd
}

// readCredentials returns the credential document as JSON
func readCredentials(api, fromStr, file string) (json.RawMessage, error) {
	src := fromStr
	switch {
	case src != "":
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		src = string(b)
	default:
		env := strings.ToUpper(api) + "_CREDENTIALS"
		if src = os.Getenv(env); src == "" {
			return nil, usageErr("no credentials: pass --from-str or --file, or set %s", env)
		}
	}
	var doc any
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, usageErr("credentials are neither JSON nor YAML: %v", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, usageErr("credentials must be an object")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, usageErr("credentials: %v", err)
	}
	return b, nil
}

func statusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print fetch status per exchange and build checkpoints per signal type",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, _ []string, p *ports) error {
			ctx := cmd.Context()
			statuses, err := p.runner.Statuses(ctx)
			if err != nil {
				return err
			}
			infos, err := p.indexes.Infos(ctx)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), p.signals.Names(), statuses, infos)
		}),
	}
}

func printStatus(out io.Writer, types []string, statuses []xdom.StatusView, infos []idom.Info) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXCHANGE\tAPI\tENABLED\tITEMS\tRUNNING\tLAST_OK\tUP_TO_DATE\tERROR")
	var failed []string
	for _, s := range statuses {
		last := "-"
		if s.LastSucceeded != nil {
			last = fmt.Sprint(*s.LastSucceeded)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%t\t%s\t%t\t%s\n", s.Name, s.API, s.Enabled, s.FetchedItems, s.Running(), last, s.UpToDate, s.LastError)
		if s.Failed() {
			failed = append(failed, s.Name)
		}
	}
	fmt.Fprintln(tw)

	byType := make(map[string]idom.Info, len(infos))
	for _, i := range infos {
		byType[i.SignalType] = i
	}
	fmt.Fprintln(tw, "SIGNAL_TYPE\tBUILT_TO_ID\tBUILT_TO_TS\tSIGNALS\tSIZE\tUPDATED")
	for _, t := range types {
		i, ok := byType[t]
		if !ok {
			fmt.Fprintf(tw, "%s\t-\t-\t0\t0\tnever\n", t)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", t, i.Checkpoint.LastID, i.Checkpoint.LastTS, i.Checkpoint.Count, i.Size, i.UpdatedAt.UTC().Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return partialErr("last fetch failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded postgres schema",
		Args:  cobra.NoArgs,
		RunE: c.runE(func(cmd *cobra.Command, _ []string, p *ports) error {
			if err := p.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		}),
	}
}
