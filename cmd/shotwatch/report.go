package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/reporter"
	"github.com/shotwatch/shotwatch/pkg/utils"
)

var (
	reportJSON     bool
	clearYes       bool
	clearOlderThan time.Duration
)

var reportCmd = &cobra.Command{
	Use:       "report [day|week|month]",
	Short:     "Show time per application from stored events",
	Long:      "Summarize the events stored by local mode or by \"shotwatch serve\".",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: reporter.Periods,
	RunE: func(cmd *cobra.Command, args []string) error {
		period := "day"
		if len(args) == 1 {
			period = args[0]
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := reporter.New(database.NewRepository(db)).GenerateReport(period)
		if err != nil {
			return err
		}

		if reportJSON {
			out, err := reporter.FormatReportJSON(report)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		}
		fmt.Print(reporter.FormatReportText(report))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete stored events and error logs",
	Long:  "Delete every stored event and error log, or with --older-than only events older than the given age.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if clearOlderThan < 0 {
			return errors.New("--older-than must not be negative")
		}

		what := "all stored events"
		if clearOlderThan > 0 {
			what = "events older than " + utils.FormatRoundedUnit(int64(clearOlderThan.Seconds()))
		}

		if !clearYes {
			fmt.Printf("This will delete %s. Are you sure? (yes/no): ", what)
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			answer = strings.ToLower(strings.TrimSpace(answer))
			if answer != "yes" && answer != "y" {
				fmt.Println("Operation cancelled")
				return nil
			}
		}

		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := database.NewRepository(db)
		if clearOlderThan > 0 {
			n, err := repo.DeleteOldEvents(time.Now().Add(-clearOlderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d %s\n", n, what)
			return nil
		}

		if err := repo.Clear(); err != nil {
			return err
		}
		fmt.Println("Database cleared successfully")
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	clearCmd.Flags().DurationVar(&clearOlderThan, "older-than", 0, "only delete events older than this age, e.g. 720h")
	rootCmd.AddCommand(reportCmd, clearCmd)
}
