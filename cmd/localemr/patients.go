package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"localemr/internal/core"
	"localemr/internal/roster"
	"localemr/pkg/domain"
)

func listCmd(env *environment) *cobra.Command {
	var filter, sortMode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the roster",
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
			view := s.FilteredSorted(f, m)
			if asJSON {
				if view == nil {
					view = []core.Patient{}
				}
				return writeJSON(cmd.OutOrStdout(), view)
			}
			if msg := s.EmptyMessage(f, m); msg != "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			}
			return writeTable(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", string(core.FilterAll), "all|pending|seen|completed")
	cmd.Flags().StringVar(&sortMode, "sort", string(core.SortStatus), "status|room")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the view as JSON")
	return cmd
}

func writeTable(w io.Writer, patients []core.Patient) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tROOM\tNAME\tAGE\tSTATUS\tDIAGNOSES")
	for _, p := range patients {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Room, roster.DisplayName(p), formatAge(p.Age), roster.StatusLabel(p.Status), firstLine(p.Diagnoses))
	}
	return tw.Flush()
}

func statsCmd(env *environment) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show roster counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := env.app.session.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Total: %d  Seen: %d  Notes: %d\n", st.Total, st.SeenCount, st.NoteCount)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the counts as JSON")
	return cmd
}

func showCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, ok, err := env.app.store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("patient %d not found", id)
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	}
}

// patientFlags binds the editable fields; age is a string so it can be cleared.
type patientFlags struct {
	name, room, age, status       string
	diagnoses, medications, notes string
}

func (pf *patientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&pf.name, "name", "", "patient name")
	cmd.Flags().StringVar(&pf.room, "room", "", "room or bed")
	cmd.Flags().StringVar(&pf.age, "age", "", "age in years; empty clears it")
	cmd.Flags().StringVar(&pf.status, "status", "", "pending|seen|noteComplete")
	cmd.Flags().StringVar(&pf.diagnoses, "diagnoses", "", "diagnoses")
	cmd.Flags().StringVar(&pf.medications, "medications", "", "medications")
	cmd.Flags().StringVar(&pf.notes, "notes", "", "free-text notes")
}

// apply copies the flags the user set onto in.
func (pf *patientFlags) apply(cmd *cobra.Command, in *core.PatientInput) error {
	set := cmd.Flags().Changed
	if set("name") {
		in.Name = pf.name
	}
	if set("room") {
		in.Room = pf.room
	}
	if set("age") {
		age, err := parseAge(pf.age)
		if err != nil {
			return err
		}
		in.Age = age
	}
	if set("status") {
		st := domain.Status(pf.status)
		if !st.Valid() {
			return fmt.Errorf("unknown status %q (pending|seen|noteComplete)", pf.status)
		}
		in.Status = st
	}
	if set("diagnoses") {
		in.Diagnoses = pf.diagnoses
	}
	if set("medications") {
		in.Medications = pf.medications
	}
	if set("notes") {
		in.Notes = pf.notes
	}
	return nil
}

func addCmd(env *environment) *cobra.Command {
	var pf patientFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in core.PatientInput
			if err := pf.apply(cmd, &in); err != nil {
				return err
			}
			id, err := env.app.session.Save(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Patient added (id %d)\n", id)
			return err
		},
	}
	pf.register(cmd)
	return cmd
}

func editCmd(env *environment) *cobra.Command {
	var pf patientFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, ok, err := env.app.store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("patient %d not found", id)
			}
			in := inputFrom(p)
			if err := pf.apply(cmd, &in); err != nil {
				return err
			}
			if _, err := env.app.session.Save(cmd.Context(), in); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Patient updated")
			return err
		},
	}
	pf.register(cmd)
	return cmd
}

func inputFrom(p core.Patient) core.PatientInput {
	return core.PatientInput{
		ID:          p.ID,
		Name:        p.Name,
		Room:        p.Room,
		Age:         p.Age,
		Status:      p.Status,
		Diagnoses:   p.Diagnoses,
		Medications: p.Medications,
		Notes:       p.Notes,
	}
}

func rmCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := confirmed(cmd); err != nil {
				return err
			}
			if err := env.app.session.Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Patient deleted")
			return err
		},
	}
	cmd.Flags().Bool("yes", false, "confirm the deletion")
	return cmd
}

func seenCmd(env *environment) *cobra.Command {
	return toggleCmd(env, "seen <id>", "Toggle whether a patient has been seen", (*core.Session).ToggleSeen)
}

func noteCmd(env *environment) *cobra.Command {
	return toggleCmd(env, "note <id>", "Toggle whether a patient's note is done", (*core.Session).ToggleNote)
}

func toggleCmd(env *environment, use, short string, toggle func(*core.Session, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s := env.app.session
			if err := toggle(s, cmd.Context(), id); err != nil {
				return err
			}
			for _, p := range s.Patients() {
				if p.ID == id {
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", roster.DisplayName(p), roster.StatusLabel(p.Status))
					return err
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "No patient with id %d\n", id)
			return err
		},
	}
}

func newDayCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new-day",
		Short: "Reset every patient to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := env.app.session
			out := cmd.OutOrStdout()
			if len(s.Patients()) == 0 {
				_, err := fmt.Fprintln(out, "No patients to reset")
				return err
			}
			if err := confirmed(cmd); err != nil {
				return err
			}
			n, err := s.ResetAllToPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("reset statuses after %s: %w", plural(n, "patient"), err)
			}
			if n == 0 {
				_, err = fmt.Fprintln(out, "All patients already pending")
				return err
			}
			_, err = fmt.Fprintf(out, "Reset %s to Pending\n", plural(n, "patient"))
			return err
		},
	}
	cmd.Flags().Bool("yes", false, "confirm the reset")
	return cmd
}

func parseAge(v string) (*int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid age %q", v)
	}
	return &n, nil
}

func formatAge(age *int) string {
	if age == nil {
		return "-"
	}
	return strconv.Itoa(*age)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
