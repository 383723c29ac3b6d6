package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thefass/ub-tools/internal/api"
	"github.com/thefass/ub-tools/internal/app"
	"github.com/thefass/ub-tools/internal/harvester"
)

func newHarvestCmd() *cobra.Command {
	var journalFilter string

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run one harvest over all configured journals.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			instance, err := app.New(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer instance.Close()
			logger := instance.Logger

			if instance.Config.Server.Enabled {
				router := api.NewRouter(instance.Totals, logger)
				go api.Serve(fmt.Sprintf(":%d", instance.Config.Server.Port), router, logger)
			}

			journals := instance.Journals
			if journalFilter != "" {
				journals = filterJournals(journals, journalFilter)
				if len(journals) == 0 {
					return fmt.Errorf("no configured journal named %q", journalFilter)
				}
			}

			totals, err := instance.Orchestrator.Run(ctx, journals)
			instance.AddTotals(totals)
			if err != nil {
				logger.Warn("harvest interrupted", zap.Error(err))
			}

			reportPath := instance.Config.Harvester.ErrorReportPath
			if reportErr := instance.Errors.WriteReport(reportPath); reportErr != nil {
				logger.Error("write error report", zap.Error(reportErr))
			}

			logger.Info("harvest finished",
				zap.Int("harvested_urls", totals.HarvestedURLs),
				zap.Int("records", totals.Records),
				zap.Int("previously_downloaded", totals.PreviouslyDownloaded),
				zap.Int("skipped_exclusion", totals.SkippedExclusion),
				zap.Int("skipped_online_first", totals.SkippedOnlineFirst),
				zap.Int("skipped_early_view", totals.SkippedEarlyView),
				zap.Bool("has_errors", instance.Errors.HasErrors()),
				zap.String("error_report", reportPath))
			return err
		},
	}

	cmd.Flags().StringVar(&journalFilter, "journal", "", "harvest only the named journal")
	return cmd
}

func filterJournals(journals []*harvester.JournalParams, name string) []*harvester.JournalParams {
	var matched []*harvester.JournalParams
	for _, journal := range journals {
		if journal.Name == name {
			matched = append(matched, journal)
		}
	}
	return matched
}
