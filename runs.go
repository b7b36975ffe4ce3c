package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/dataset"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List calibration runs stored in SQLite, or the poses of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.Calibration.Database
			}
			if dbPath == "" {
				dbPath = filepath.Join(cfg.Calibration.OutputDir, "calibration.db")
			}
			store := dataset.NewSqliteStore(dbPath)
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 0 {
				return listRuns(cmd.Context(), store, w)
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}
			return listPoses(cmd.Context(), store, id, w)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (default <out>/calibration.db)")
	return cmd
}

func listRuns(ctx context.Context, store *dataset.SqliteStore, w *tabwriter.Writer) error {
	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "RUN\tDISTANCE\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s (%s)\n", r.ID, r.Distance.Label, r.Started.Local().Format("2006-01-02 15:04:05"), humanize.Time(r.Started))
	}
	return nil
}

func listPoses(ctx context.Context, store *dataset.SqliteStore, id uuid.UUID, w *tabwriter.Writer) error {
	poses, err := store.Poses(ctx, id)
	if err != nil {
		return err
	}
	if len(poses) == 0 {
		return fmt.Errorf("run %s has no poses", id)
	}
	fmt.Fprintln(w, "ANGLE\tNORTH\tEAST\tSOUTH\tWEST\tSAMPLES\tHEADING\tERROR")
	for _, p := range poses {
		samples := 0
		for _, n := range p.Counts {
			samples += n
		}
		heading := bearing.Degrees(bearing.ToCompass(p.Bearing))
		errDeg := bearing.Degrees(bearing.AngleDiff(bearing.Radians(heading), bearing.Radians(float64(p.Angle))))
		fmt.Fprintf(w, "%d\t%.1f\t%.1f\t%.1f\t%.1f\t%s\t%.0f\t%+.0f\n", p.Angle,
			p.Mean[scanner.North], p.Mean[scanner.East], p.Mean[scanner.South], p.Mean[scanner.West],
			humanize.Comma(int64(samples)), heading, errDeg)
	}
	return nil
}
