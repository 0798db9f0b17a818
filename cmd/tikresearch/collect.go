package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"tikresearch/pkg/auth"
	"tikresearch/pkg/collector"
	"tikresearch/pkg/config"
	errs "tikresearch/pkg/errors"
	"tikresearch/pkg/logger"
	"tikresearch/pkg/tiktok"
)

var (
	queryOption string
	queryInput  string
	collectMax  int
	startDate   string
	endDate     string
	withVideos  bool
	outputDir   string
	format      string
	rateLimit   int
	maxRetries  int
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect user, search or comment data",
	Long: `Collect data from the TikTok Research API.

Query options:
  user      -i is a username; collects the user's profile
  search    -i is a comma-separated keyword/hashtag list; collects videos
  comments  -i is a video id; collects that video's comments

Search collection is windowed by --start_date/--end_date and chunked into
30-day sub-ranges, the widest span the API accepts per query. The
comments endpoint is not date-windowed; date flags are ignored there.`,
	Example: `  # Collect a user profile
  tikresearch collect -q user -i john_doe

  # Collect a profile along with the user's video history
  tikresearch collect -q user -i john_doe --with-videos -m 500

  # Collect up to 2000 videos matching keywords since June 2023
  tikresearch collect -q search -i "climate,global warming" -m 2000 -d 2023-06-01

  # Collect comments for a video
  tikresearch collect -q comments -i 7178217441201933314`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVarP(&queryOption, "query_option", "q", "", "what to query: user, search or comments")
	collectCmd.Flags().StringVarP(&queryInput, "query_input", "i", "", "query input: username, keyword list or video id")
	collectCmd.Flags().IntVarP(&collectMax, "collect_max", "m", 100, "max number of records to collect")
	collectCmd.Flags().StringVarP(&startDate, "start_date", "d", "2023-01-01", "collection window start (YYYY-MM-DD)")
	collectCmd.Flags().StringVar(&endDate, "end_date", "", "collection window end (YYYY-MM-DD, default today)")
	collectCmd.Flags().BoolVar(&withVideos, "with-videos", false, "in user mode, also collect the user's video history")
	collectCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: data)")
	collectCmd.Flags().StringVar(&format, "format", "", "output format: json or csv (default: json)")
	collectCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	collectCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "max retry attempts per page request")

	_ = collectCmd.MarkFlagRequired("query_option")
	_ = collectCmd.MarkFlagRequired("query_input")
}

func runCollect(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, log, err := setupRun(cmd)
	if err != nil {
		return err
	}

	mode, err := collector.ParseMode(queryOption)
	if err != nil {
		return err
	}

	start, err := tiktok.ParseDate(startDate)
	if err != nil {
		return err
	}
	end := time.Now().UTC()
	if endDate != "" {
		if end, err = tiktok.ParseDate(endDate); err != nil {
			return err
		}
	}

	creds, err := resolveCredentials(cfg)
	if err != nil {
		return err
	}

	log.InfoWithFields("starting data collection", map[string]interface{}{
		"query_option": queryOption,
		"query_input":  queryInput,
		"collect_max":  collectMax,
		"start_date":   startDate,
	})

	coll := collector.New(cfg, creds, log)
	return coll.Run(context.Background(), collector.Options{
		Mode:          mode,
		Input:         queryInput,
		CollectMax:    collectMax,
		Start:         start,
		End:           end,
		DateWindowSet: cmd.Flags().Changed("start_date") || cmd.Flags().Changed("end_date"),
		WithVideos:    withVideos,
	})
}

// setupRun loads configuration and initializes logging for a command
func setupRun(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if format != "" {
		flags["format"] = format
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if cmd.Flags().Changed("log-level") {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, err
	}
	return cfg, logger.GetLogger(), nil
}

// resolveCredentials returns the client key and secret, surfacing their
// absence as an auth failure before any network call.
func resolveCredentials(cfg *config.Config) (auth.Credentials, error) {
	if cfg.HasCredentials() {
		return auth.Credentials{
			ClientKey:    cfg.API.ClientKey,
			ClientSecret: cfg.API.ClientSecret,
		}, nil
	}

	mgr, err := auth.NewManager()
	if err == nil {
		if stored, loadErr := mgr.Load(); loadErr == nil {
			return *stored, nil
		} else if !errors.Is(loadErr, auth.ErrCredentialsNotFound) {
			return auth.Credentials{}, loadErr
		}
	}

	return auth.Credentials{}, errs.New(errs.ErrorTypeAuth,
		"no credentials configured: run 'tikresearch auth login' or set TIKTOK_CLIENT_KEY and TIKTOK_CLIENT_SECRET")
}
