package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shotwatch/shotwatch/internal/daemon"
	"github.com/shotwatch/shotwatch/internal/database"
	"github.com/shotwatch/shotwatch/internal/exclusion"
	"github.com/shotwatch/shotwatch/pkg/detector"
	"github.com/shotwatch/shotwatch/pkg/window"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background watcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		dm := daemon.New(cfg.Daemon.PIDFile)
		_, pid, _ := dm.IsRunning()
		if err := dm.Stop(); err != nil {
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Println("Watcher is not running")
				return nil
			}
			return err
		}
		fmt.Printf("Watcher stopped (PID: %d)\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the watcher process, the focused window and delivery state",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

func init() {
	statusCmd.Flags().String("strategy", "", "window sampling strategy used for the one-off sample")
	rootCmd.AddCommand(stopCmd, statusCmd)
}

func showStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return err
	}
	if running {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
	} else {
		fmt.Println("Status: Not running")
	}
	fmt.Printf("Poll Interval: %v\n", cfg.PollInterval())
	fmt.Printf("Collector: %s (%s mode)\n", cfg.ServerURL(), cfg.Emitter.Mode)
	fmt.Printf("Screenshots: %s\n", cfg.Capture.StorageDir)
	fmt.Printf("Title exclusion: %s\n", exclusionSummary(policy))

	// Sampling works whether or not the watcher runs.
	det, err := detector.New(cfg.Watcher.Strategy)
	if err != nil {
		fmt.Printf("\nCould not sample the current window: %v\n", err)
	} else {
		defer det.Close()
		printCurrentWindow(os.Stdout, det, policy)
	}

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		return nil
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := database.NewRepository(db)

	if depth, err := repo.QueueDepth(); err == nil {
		fmt.Printf("\nQueued collector requests: %d\n", depth)
	}

	logs, err := repo.RecentErrors(5)
	if err != nil {
		return err
	}
	if len(logs) > 0 {
		fmt.Println("\nRecent errors:")
		for _, l := range logs {
			fmt.Printf("  %s [%s/%s] %s\n", l.Timestamp.Local().Format("2006-01-02 15:04:05"), l.Kind, l.Severity, l.ErrorMsg)
		}
	}
	return nil
}

// exclusionSummary describes which titles the watcher redacts.
func exclusionSummary(p *exclusion.Policy) string {
	switch {
	case p.ExcludeAll():
		return "all titles"
	case len(p.Patterns()) > 0:
		return "titles matching " + strings.Join(p.Patterns(), ", ")
	default:
		return "off"
	}
}

// printCurrentWindow samples det once and prints the window with the
// title redacted the way the watcher would store it.
func printCurrentWindow(out io.Writer, det window.Detector, policy *exclusion.Policy) {
	info, err := det.GetFocusedWindow()
	if err != nil {
		fmt.Fprintf(out, "\nCould not sample the current window: %v\n", err)
		return
	}
	if info == nil {
		return
	}

	filtered := policy.Apply(*info)
	fmt.Fprintf(out, "\nCurrent Window (%s):\n", det.Strategy())
	fmt.Fprintf(out, "  App: %s\n", filtered.AppName)
	fmt.Fprintf(out, "  Title: %s\n", filtered.WindowTitle)
	fmt.Fprintf(out, "  Display: %s\n", filtered.DisplayServer)
}
