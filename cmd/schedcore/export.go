package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schedcu/core/internal/calendar"
)

var (
	exportPerson string
	exportStart  string
	exportEnd    string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export schedule data",
}

var exportICSCmd = &cobra.Command{
	Use:   "ics",
	Short: "Render a person's schedule window as an iCalendar file",
	Long: `Export ics renders a person's assignments as an RFC 5545 document with
an America/New_York VTIMEZONE, suitable for any calendar client.

Examples:
  schedcore export ics --data schedule.json --person <uuid> --start 2025-07-01 --end 2025-07-28
  schedcore export ics --data schedule.json --person <uuid> --start 2025-07-01 --end 2025-07-28 -o smith.ics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		personID, err := uuid.Parse(exportPerson)
		if err != nil {
			return fmt.Errorf("parsing --person: %w", err)
		}
		start, end, err := parseWindow(exportStart, exportEnd)
		if err != nil {
			return err
		}
		store, err := newStore(ctx)
		if err != nil {
			return err
		}
		svc, err := calendar.NewService(store, log)
		if err != nil {
			return err
		}
		ics, err := svc.Export(ctx, personID, start, end)
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Print(ics)
			return nil
		}
		return os.WriteFile(exportOut, []byte(ics), 0o600)
	},
}

func init() {
	exportICSCmd.Flags().StringVar(&exportPerson, "person", "", "person id")
	exportICSCmd.Flags().StringVar(&exportStart, "start", "", "window start (YYYY-MM-DD)")
	exportICSCmd.Flags().StringVar(&exportEnd, "end", "", "window end (YYYY-MM-DD)")
	exportICSCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write to file instead of stdout")
	_ = exportICSCmd.MarkFlagRequired("person")
	_ = exportICSCmd.MarkFlagRequired("start")
	_ = exportICSCmd.MarkFlagRequired("end")

	exportCmd.AddCommand(exportICSCmd)
	rootCmd.AddCommand(exportCmd)
}
