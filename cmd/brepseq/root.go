package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/chazu/brepseq/pkg/config"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/sequence"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

func newRootCmd() *cobra.Command {
	var cfgFile string
	app := new(*App)

	root := &cobra.Command{
		Use:   "brepseq",
		Short: "Replay construction scripts against a B-Rep kernel",
		Long: `brepseq builds solid models by replaying construction scripts,
written as YAML or as Lisp, and keeps the names of topological entities
stable while the kernel rebuilds them.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			log := cfg.Log.NewLogger(cmd.ErrOrStderr())
			if cfg.File != "" {
				log.Debug("using config file", "path", cfg.File)
			}
			a, err := NewApp(cfg, log)
			if err != nil {
				return err
			}
			*app = a
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), log))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return (*app).Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./brepseq.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newBuildCmd(app),
		newPreviewCmd(app),
		newEvalCmd(app),
		newHistoryCmd(app),
	)
	return root
}

type stopFlags struct {
	name          string
	index         int
	after         bool
	keepFrameOpen bool
}

func (f *stopFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "stop-at", "", "halt at the named step")
	cmd.Flags().IntVar(&f.index, "stop-index", -1, "halt at the step with this index")
	cmd.Flags().BoolVar(&f.after, "after", false, "run the stop step before halting")
	cmd.Flags().BoolVar(&f.keepFrameOpen, "keep-frame-open", false, "leave local frames open at the stop")
}

func (f *stopFlags) stop() *sequence.StopAt {
	if f.name == "" && f.index < 0 {
		return nil
	}
	return &sequence.StopAt{Name: f.name, Index: f.index, After: f.after, KeepFrameOpen: f.keepFrameOpen}
}

func newBuildCmd(app **App) *cobra.Command {
	var finalize, preview bool
	var stop stopFlags
	cmd := &cobra.Command{
		Use:   "build SCRIPT...",
		Short: "Build one or more scripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reqs []BuildRequest
			for _, p := range args {
				reqs = append(reqs, BuildRequest{Path: p, Finalize: finalize, NoMesh: !preview, Stop: stop.stop()})
			}
			reports, err := (*app).BuildAll(cmd.Context(), reqs)
			printReports(cmd.OutOrStdout(), reports)
			return err
		},
	}
	cmd.Flags().BoolVar(&finalize, "finalize", false, "write the result into the working directory")
	cmd.Flags().BoolVar(&preview, "preview", false, "also compute the preview mesh")
	stop.register(cmd)
	return cmd
}

func printReports(w io.Writer, reports []*BuildReport) {
	for _, rep := range reports {
		if rep == nil || rep.Result == nil {
			continue
		}
		res := rep.Result
		fmt.Fprintf(w, "%s: %d steps, %d solids, %d faces", rep.Target, len(res.Order),
			res.Registry.Count(kernel.Solid), res.Registry.Count(kernel.Face))
		switch {
		case res.BrepPath != "":
			fmt.Fprintf(w, " -> %s", res.BrepPath)
		case res.OpenFrames > 0:
			fmt.Fprintf(w, " (%d frame(s) open)", res.OpenFrames)
		}
		if res.Stopped {
			fmt.Fprintf(w, " [stopped, resume at %d]", res.Next)
		}
		fmt.Fprintln(w)
	}
}

func newPreviewCmd(app **App) *cobra.Command {
	var out string
	var stop stopFlags
	cmd := &cobra.Command{
		Use:   "preview SCRIPT...",
		Short: "Write preview meshes as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reqs []BuildRequest
			for _, p := range args {
				reqs = append(reqs, BuildRequest{Path: p, Stop: stop.stop()})
			}
			reports, buildErr := (*app).BuildAll(cmd.Context(), reqs)

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return errors.Join(buildErr, err)
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(Meshes(reports)); err != nil {
				return errors.Join(buildErr, fmt.Errorf("write meshes: %w", err))
			}
			return buildErr
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file")
	stop.register(cmd)
	return cmd
}

func newEvalCmd(app **App) *cobra.Command {
	var emit bool
	cmd := &cobra.Command{
		Use:   "eval SOURCE...",
		Short: "Evaluate Lisp sources and report problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			failed := 0
			for _, p := range args {
				rep, err := (*app).Check(p, emit)
				if err != nil {
					return err
				}
				for _, e := range rep.Result.Errors {
					fmt.Fprintf(w, "%s: error: %s\n", p, e)
				}
				for _, wn := range rep.Result.Warnings {
					fmt.Fprintf(w, "%s: warning: %s\n", p, wn.Message)
				}
				if len(rep.Result.Errors) > 0 {
					failed++
					continue
				}
				if emit {
					fmt.Fprint(w, rep.Rendered)
				} else {
					fmt.Fprintf(w, "%s: %d steps\n", p, rep.Result.Script.Len())
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d source(s) have errors", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&emit, "emit", false, "print the produced script as YAML")
	return cmd
}

func newHistoryCmd(app **App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent builds from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := *app
			if a.journal == nil {
				return errors.New("no journal configured (set journal.path or --journal)")
			}
			records, err := a.journal.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tTARGET\tOUTCOME\tSTEPS\tDURATION\tDETAIL")
			for _, r := range records {
				detail := r.BrepPath
				if r.Error != "" {
					detail = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Target, r.Outcome, r.Steps, r.Duration, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of builds to show")
	return cmd
}
