package main

import (
	"github.com/spf13/cobra"
)

func SetupCommands(a *App) *cobra.Command {
	// root command, syncs when called without a subcommand
	rootCmd := &cobra.Command{
		Use:   "coursesync",
		Short: "Sync the weekly course schedule in a README with a GitHub project board",
		Long: `coursesync reads the items of a GitHub project board, keeps the ones
that belong to the target week and rewrites the table between the
<!-- WEEKLY_SCHEDULE_START --> and <!-- WEEKLY_SCHEDULE_END --> markers.

Board fields: Week/周次, Date/日期, LessonNo/课次, Topic/主题, Status/状态, Materials/课件.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.out = cmd.OutOrStdout()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, a)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.ConfigPath, "config", "", "path to a YAML config file (env COURSESYNC_CONFIG)")
	flags.StringVar(&a.opts.Readme, "readme", "", "README to update (env README_PATH, default README.md)")
	flags.StringVar(&a.opts.Owner, "owner", "", "project owner login (env PROJECT_OWNER)")
	flags.StringVar(&a.opts.Number, "number", "", "project number (env PROJECT_NUMBER)")
	flags.StringVar(&a.opts.ProjectURL, "project-url", "", "project URL to take owner and number from (env COURSE_PROJECT_URL)")
	flags.StringVar(&a.opts.Week, "week", "", "target ISO week such as 2024-W05 (env WEEK, default current week)")
	flags.StringVar(&a.opts.HistoryDB, "history-db", "", "SQLite file recording each run (env COURSESYNC_HISTORY_DB)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	// command for a full sync, same as the root command
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Rewrite the schedule block of the README",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, a)
		},
	}

	// command for printing the block without writing it
	var pretty bool
	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the schedule block for the target week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(true); err != nil {
				return err
			}
			return a.Preview(cmd.Context(), pretty)
		},
	}
	previewCmd.Flags().BoolVar(&pretty, "pretty", false, "render the markdown for the terminal")

	// command for choosing a week interactively
	var pickPretty bool
	weeksCmd := &cobra.Command{
		Use:   "weeks",
		Short: "Choose one of the weeks on the board and preview it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(true); err != nil {
				return err
			}
			return a.PickWeek(cmd.Context(), pickPretty)
		},
	}
	weeksCmd.Flags().BoolVar(&pickPretty, "pretty", false, "render the markdown for the terminal")

	// command for listing recorded runs
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.init(false); err != nil {
				return err
			}
			return a.History(limit)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	// add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(weeksCmd)
	rootCmd.AddCommand(historyCmd)

	return rootCmd
}

func runSync(cmd *cobra.Command, a *App) error {
	if err := a.init(true); err != nil {
		return err
	}
	_, err := a.Sync(cmd.Context())
	return err
}
