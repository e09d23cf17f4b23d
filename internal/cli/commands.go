package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/service"
)

func parseRate(args []string) (service.Action, error) {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: quality must be a number", internal.ErrInvalidRating)
	}
	return service.Rate{Value: n}, nil
}

func (o *options) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current state and latest session",
		Args:  cobra.NoArgs,
		RunE: o.closing(func(cmd *cobra.Command, args []string) error {
			state, sess, err := o.tracker.Status(cmd.Context(), o.userID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "state: %s\n", state)
			if sess == nil {
				return nil
			}
			fmt.Fprintf(w, "slept at: %s\n", sess.SleepTime.Format(time.RFC3339))
			if sess.WakeTime != nil {
				fmt.Fprintf(w, "woke at:  %s (%s)\n", sess.WakeTime.Format(time.RFC3339), service.FormatElapsed(sess.Duration()))
			}
			if sess.Quality != nil {
				fmt.Fprintf(w, "quality:  %d\n", *sess.Quality)
			}
			notes, err := o.tracker.Notes(cmd.Context(), o.userID)
			if err != nil {
				return err
			}
			for _, n := range notes {
				fmt.Fprintf(w, "note:     %s\n", n.Text)
			}
			return nil
		}),
	}
}

func (o *options) statsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise recent sessions",
		Args:  cobra.NoArgs,
		RunE: o.closing(func(cmd *cobra.Command, args []string) error {
			if days == 0 {
				days = o.cfg.StatsWindowDays
			}
			if days < 1 {
				return fmt.Errorf("%w: --days must be positive", internal.ErrInvalidInput)
			}
			stats, err := o.tracker.Stats(cmd.Context(), o.userID, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "sessions in last %d days: %d (%d rated)\n", days, stats.Sessions, stats.RatedSessions)
			fmt.Fprintf(w, "average quality: %.2f\n", stats.AverageQuality)
			fmt.Fprintf(w, "average sleep: %s\n", service.FormatElapsed(stats.AverageDuration))
			fmt.Fprintf(w, "trend: %v\n", stats.Trend)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days (default STATS_WINDOW_DAYS)")
	return cmd
}
