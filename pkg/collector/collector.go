package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tikresearch/pkg/auth"
	"tikresearch/pkg/config"
	"tikresearch/pkg/errors"
	"tikresearch/pkg/logger"
	"tikresearch/pkg/ratelimit"
	"tikresearch/pkg/storage"
	"tikresearch/pkg/tiktok"
)

// modeSubdirs maps collection modes to output subdirectories
var modeSubdirs = map[Mode]string{
	ModeUser:     "users",
	ModeSearch:   "search",
	ModeComments: "comments",
}

// Options are the per-invocation collection parameters
type Options struct {
	Mode       Mode
	Input      string
	CollectMax int
	Start      time.Time
	End        time.Time

	// DateWindowSet marks an explicitly supplied date flag; comments
	// mode warns instead of silently accepting unused flags.
	DateWindowSet bool

	// WithVideos also collects the user's video history in user mode
	WithVideos bool
}

// Collector runs one logical query end-to-end: filter building, date
// chunking, paginated fetching, and emission to a sink.
type Collector struct {
	cfg     *config.Config
	client  *tiktok.Client
	storage *storage.Manager
	logger  logger.Logger
}

// New creates a collector from configuration and credentials
func New(cfg *config.Config, creds auth.Credentials, log logger.Logger) *Collector {
	if log == nil {
		log = logger.GetLogger()
	}

	tokens := tiktok.NewTokenManager(creds, cfg.API.BaseURL, cfg.API.RequestTimeout, log)
	client := tiktok.NewClient(tokens, tiktok.ClientOptions{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.RequestTimeout,
		MaxRetries:  cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		RateLimiter: ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
		Logger:      log,
	})

	return &Collector{
		cfg:     cfg,
		client:  client,
		storage: storage.NewManager(cfg.Output.BaseDirectory),
		logger:  log,
	}
}

// NewWithClient creates a collector around an existing client. Used in
// tests to point at a mock server.
func NewWithClient(cfg *config.Config, client *tiktok.Client, log logger.Logger) *Collector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Collector{
		cfg:     cfg,
		client:  client,
		storage: storage.NewManager(cfg.Output.BaseDirectory),
		logger:  log,
	}
}

// Run executes one collection job and writes results to the sink for the
// requested mode. Records handed to the sink before a failure stay
// durable.
func (c *Collector) Run(ctx context.Context, opts Options) error {
	req, err := BuildRequest(opts.Mode, opts.Input, opts.CollectMax, opts.Start, opts.End, c.cfg.API.Regions)
	if err != nil {
		return err
	}

	sink, err := c.storage.Sink(modeSubdirs[req.Mode], req.Input, c.cfg.Output.Format)
	if err != nil {
		return err
	}

	var runErr error
	switch req.Mode {
	case ModeUser:
		runErr = c.collectUser(ctx, req, opts, sink)
	case ModeSearch:
		runErr = c.collectSearch(ctx, req, opts, sink)
	case ModeComments:
		runErr = c.collectComments(ctx, req, opts, sink)
	}

	if closeErr := sink.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return runErr
}

// collectUser fetches a single profile, optionally followed by the
// user's video history through the regular chunked fetch path.
func (c *Collector) collectUser(ctx context.Context, req *Request, opts Options, sink storage.Sink) error {
	c.logger.InfoWithFields("collecting user profile", map[string]interface{}{
		"username": req.Username,
	})

	profile, err := c.client.UserInfo(ctx, req.Username)
	if err != nil {
		return &errors.FetchError{Mode: string(req.Mode), Input: req.Input, Page: 1, Err: err}
	}

	if opts.WithVideos {
		videos, err := c.fetchUserVideos(ctx, req, opts)
		// Attach whatever was collected before a failure
		profile.Videos = videos
		if err != nil {
			if writeErr := sink.Write(profile); writeErr != nil {
				return writeErr
			}
			return err
		}
	}

	return sink.Write(profile)
}

func (c *Collector) fetchUserVideos(ctx context.Context, req *Request, opts Options) ([]tiktok.Video, error) {
	chunks, err := tiktok.Chunks(req.Query.Start, req.Query.End, c.cfg.API.MaxSpanDays)
	if err != nil {
		return nil, err
	}

	fetcher := tiktok.NewFetcher(c.client, c.cfg.API.PageSize, string(req.Mode), req.Input, c.logger)
	remaining := opts.CollectMax

	var videos []tiktok.Video
	for _, chunk := range chunks {
		if remaining <= 0 {
			break
		}
		stream := fetcher.Videos(ctx, req.Query.Filter, chunk, remaining)
		n, err := stream.Drain(func(rec tiktok.Record) error {
			if v, ok := rec.(*tiktok.Video); ok {
				videos = append(videos, *v)
			}
			return nil
		})
		remaining -= n
		if err != nil {
			return videos, err
		}
	}
	return videos, nil
}

// collectSearch runs the chunked, bounded video search
func (c *Collector) collectSearch(ctx context.Context, req *Request, opts Options, sink storage.Sink) error {
	chunks, err := tiktok.Chunks(req.Query.Start, req.Query.End, c.cfg.API.MaxSpanDays)
	if err != nil {
		return err
	}

	c.logger.InfoWithFields("collecting videos", map[string]interface{}{
		"keywords":    req.Keywords,
		"collect_max": req.Query.MaxCount,
		"chunks":      len(chunks),
		"window":      fmt.Sprintf("%s..%s", req.Query.Start.Format("2006-01-02"), req.Query.End.Format("2006-01-02")),
	})

	fetcher := tiktok.NewFetcher(c.client, c.cfg.API.PageSize, string(req.Mode), req.Input, c.logger)
	remaining := req.Query.MaxCount
	total := 0

	for _, chunk := range chunks {
		if remaining <= 0 {
			break
		}

		stream := fetcher.Videos(ctx, req.Query.Filter, chunk, remaining)
		n, err := stream.Drain(sink.Write)
		total += n
		remaining -= n
		if err != nil {
			return err
		}

		c.logger.InfoWithFields("chunk complete", map[string]interface{}{
			"chunk":     chunk.String(),
			"collected": n,
			"total":     total,
		})
	}

	c.reportTotal(total)
	return nil
}

// collectComments drains the comment endpoint for one video. The comment
// endpoint is not date-windowed; explicitly supplied date flags are
// ignored with a warning.
func (c *Collector) collectComments(ctx context.Context, req *Request, opts Options, sink storage.Sink) error {
	if opts.DateWindowSet {
		c.logger.Warn("comments mode ignores the date window flags")
	}

	budget := req.Query.MaxCount
	if budget > c.cfg.API.CommentsMax {
		c.logger.WarnWithFields("capping comment collection to the vendor limit", map[string]interface{}{
			"requested": budget,
			"cap":       c.cfg.API.CommentsMax,
		})
		budget = c.cfg.API.CommentsMax
	}

	c.logger.InfoWithFields("collecting comments", map[string]interface{}{
		"video_id":    req.VideoID,
		"collect_max": budget,
	})

	fetcher := tiktok.NewFetcher(c.client, c.cfg.API.PageSize, string(req.Mode), req.Input, c.logger)
	stream := fetcher.Comments(ctx, req.VideoID, budget)

	total, err := stream.Drain(sink.Write)
	if err != nil {
		return err
	}

	c.reportTotal(total)
	return nil
}

// RunCustom executes a caller-supplied filter against an explicit
// endpoint URL, paginating through the same machinery as the built-in
// modes.
func (c *Collector) RunCustom(ctx context.Context, rawQuery json.RawMessage, reqURL string, opts Options) error {
	if len(rawQuery) == 0 {
		return errors.New(errors.ErrorTypeInvalidInput, "custom query must not be empty")
	}
	if reqURL == "" {
		return errors.New(errors.ErrorTypeInvalidInput, "custom query requires a target URL")
	}
	if opts.CollectMax <= 0 {
		return errors.New(errors.ErrorTypeInvalidInput, "collect max must be positive, got %d", opts.CollectMax)
	}

	sink, err := c.storage.Sink("custom", opts.Input, c.cfg.Output.Format)
	if err != nil {
		return err
	}

	var chunk *tiktok.Range
	if opts.DateWindowSet {
		chunk = &tiktok.Range{Start: opts.Start, End: opts.End}
	}

	fetcher := tiktok.NewFetcher(c.client, c.cfg.API.PageSize, "custom", opts.Input, c.logger)
	stream := fetcher.Custom(ctx, reqURL, rawQuery, chunk, opts.CollectMax)

	total, drainErr := stream.Drain(sink.Write)
	if closeErr := sink.Close(); closeErr != nil && drainErr == nil {
		drainErr = closeErr
	}
	if drainErr != nil {
		return drainErr
	}

	c.reportTotal(total)
	return nil
}

func (c *Collector) reportTotal(total int) {
	if total == 0 {
		c.logger.Warn("no data collected, try a wider window or different input")
		return
	}
	c.logger.InfoWithFields("collection complete", map[string]interface{}{
		"records": total,
	})
}
