package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"localemr/pkg/domain"
)

// environment is the per-invocation state shared by the command tree.
type environment struct {
	open       openFunc
	app        *app
	metricsOut string
	cancel     context.CancelFunc
}

// errNotConfirmed is returned by destructive commands run without --yes.
var errNotConfirmed = errors.New("refusing to continue without --yes")

func newRootCmd(env *environment) *cobra.Command {
	root := &cobra.Command{
		Use:           "localemr",
		Short:         "Offline patient roster for clinical rounding",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsApp(cmd) {
				return nil
			}
			return env.start(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if env.metricsOut == "" || env.app == nil {
				return nil
			}
			return env.app.writeMetrics(env.metricsOut)
		},
	}
	root.PersistentFlags().StringVar(&env.metricsOut, "metrics-out", "", "write store metrics to this file on exit")

	root.AddCommand(
		listCmd(env),
		statsCmd(env),
		showCmd(env),
		addCmd(env),
		editCmd(env),
		rmCmd(env),
		seenCmd(env),
		noteCmd(env),
		newDayCmd(env),
		exportCmd(env),
		importCmd(env),
		backupCmd(env),
		rosterCmd(env),
	)
	return root
}

// start opens the app, bounds the command by the store timeout and loads the cache.
func (e *environment) start(cmd *cobra.Command) error {
	a, err := e.open(cmd.Context(), appOptions{forceMetrics: e.metricsOut != ""})
	if err != nil {
		return err
	}
	e.app = a
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Storage.Timeout)
	e.cancel = cancel
	cmd.SetContext(ctx)
	return a.session.Reload(ctx)
}

// needsApp is false for cobra's own help and completion commands.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "help" || c.Name() == "completion" {
			return false
		}
	}
	return true
}

func (e *environment) fail(err error) {
	if e.app == nil {
		return
	}
	fields := []zap.Field{zap.Error(err)}
	var se *domain.StorageError
	if errors.As(err, &se) {
		fields = append(fields, zap.String("op", se.Op))
	}
	e.app.logger.Error("command failed", fields...)
}

func (e *environment) close() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.app != nil {
		e.app.close()
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid patient id %q", arg)
	}
	return id, nil
}

func confirmed(cmd *cobra.Command) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return errNotConfirmed
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
