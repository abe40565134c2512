// Command drivemind watches a driver through a camera and speaks short
// advisories when fatigue or stress builds up.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-drivemind/internal/config"
	"github.com/teslashibe/go-drivemind/internal/log"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "drivemind",
	Short:             "drivemind - driver fatigue and wellness monitor",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start monitoring with the dashboard",
	RunE:  runMonitor,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Print stored per-driver thresholds and EAR baselines",
	RunE:  runProfiles,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recent alert events",
	RunE:  runEvents,
}

var (
	sourceFlag  string
	noVoiceFlag bool
	blurFlag    bool
	portFlag    string
	tailFlag    int
)

func init() {
	runCmd.Flags().StringVar(&sourceFlag, "source", "", "camera index or video path (overrides DRIVEMIND_CAMERA_SOURCE)")
	runCmd.Flags().BoolVar(&noVoiceFlag, "no-voice", false, "disable spoken advisories")
	runCmd.Flags().BoolVar(&blurFlag, "blur", false, "blur faces in the dashboard preview")
	runCmd.Flags().StringVar(&portFlag, "port", "", "dashboard port (overrides DRIVEMIND_DASHBOARD_PORT)")
	eventsCmd.Flags().IntVarP(&tailFlag, "tail", "n", 20, "number of most recent events to print")

	rootCmd.AddCommand(runCmd, profilesCmd, eventsCmd)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c
	log.Init(cfg.LogLevel)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
