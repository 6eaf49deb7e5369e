package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"localemr/internal/core"
	"localemr/internal/roster"
)

func exportCmd(env *environment) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON backup of every patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := env.app.session.Export(cmd.Context())
			if err != nil {
				return err
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(append(doc, '\n'))
				return err
			}
			if out == "" {
				out = core.BackupFilename(time.Now())
			}
			if err := writeFileAtomic(out, doc); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Data exported to %s\n", out)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default localemr-backup-<date>.json)")
	return cmd
}

func importCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every patient with the contents of a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			if err := confirmed(cmd); err != nil {
				return err
			}
			n, err := env.app.session.Import(cmd.Context(), doc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", plural(n, "patient"))
			return err
		},
	}
	cmd.Flags().Bool("yes", false, "confirm replacing the roster")
	return cmd
}

func backupCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage stored backups",
	}
	service := func(cmd *cobra.Command) (*core.BackupService, error) {
		blobs, err := env.app.blobs(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("open backup store: %w", err)
		}
		return core.NewBackupService(env.app.session, blobs), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Store a backup of every patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			b, err := svc.Create(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Backup %s (%s)\n", b.Key, plural(b.Patients, "patient"))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			backups, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No backups yet")
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "KEY\tPATIENTS\tSIZE\tSAVED")
			for _, b := range backups {
				patients := "?"
				if b.Patients >= 0 {
					patients = fmt.Sprint(b.Patients)
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", b.Key, patients, b.Size, b.SavedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	})

	restore := &cobra.Command{
		Use:   "restore <key>",
		Short: "Replace every patient with a stored backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirmed(cmd); err != nil {
				return err
			}
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			n, err := svc.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", plural(n, "patient"))
			return err
		},
	}
	restore.Flags().Bool("yes", false, "confirm replacing the roster")
	cmd.AddCommand(restore)

	remove := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirmed(cmd); err != nil {
				return err
			}
			svc, err := service(cmd)
			if err != nil {
				return err
			}
			ok, err := svc.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("backup %s not found", args[0])
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Backup %s deleted\n", args[0])
			return err
		},
	}
	remove.Flags().Bool("yes", false, "confirm the deletion")
	cmd.AddCommand(remove)
	return cmd
}

func rosterCmd(env *environment) *cobra.Command {
	var out, filter, sortMode string
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Write the rounding list as an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := core.ParseFilter(filter)
			if err != nil {
				return err
			}
			m, err := core.ParseSortMode(sortMode)
			if err != nil {
				return err
			}
			s := env.app.session
			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create roster: %w", err)
			}
			if err := roster.WriteWorkbook(file, s.FilteredSorted(f, m), s.Stats()); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("close roster: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Roster written to %s\n", out)
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "rounds.xlsx", "output workbook")
	cmd.Flags().StringVar(&filter, "filter", string(core.FilterAll), "all|pending|seen|completed")
	cmd.Flags().StringVar(&sortMode, "sort", string(core.SortStatus), "status|room")
	return cmd
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".localemr-export-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}
