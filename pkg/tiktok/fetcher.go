package tiktok

import (
	"context"
	goerrors "errors"
	"strconv"

	"tikresearch/pkg/errors"
	"tikresearch/pkg/logger"
)

// ErrStreamDone signals that a stream has no further records
var ErrStreamDone = goerrors.New("no more records")

// Fetcher drives cursor pagination over the research API. The seen set is
// scoped to the fetcher, so deduplication spans every chunk and page of
// one logical collection job; an item reappearing at a chunk boundary is
// dropped, not double-counted.
type Fetcher struct {
	client   *Client
	pageSize int
	mode     string
	input    string
	seen     map[string]struct{}
	logger   logger.Logger
}

// NewFetcher creates a fetcher for one logical query. mode and input are
// carried into failure context so an operator can re-run a narrower
// query.
func NewFetcher(client *Client, pageSize int, mode, input string, log logger.Logger) *Fetcher {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		client:   client,
		pageSize: pageSize,
		mode:     mode,
		input:    input,
		seen:     make(map[string]struct{}),
		logger:   log,
	}
}

// Seen returns how many distinct records the fetcher has emitted
func (f *Fetcher) Seen() int { return len(f.seen) }

// pageFunc fetches one page: records, has_more, error. Implementations
// capture and advance their own cursor state.
type pageFunc func(ctx context.Context, maxCount int) ([]Record, bool, error)

// Stream is a lazy, pull-based sequence of deduplicated records, bounded
// by the caller's remaining budget. It stops issuing page requests the
// moment the bound is reached, even mid-page.
type Stream struct {
	ctx       context.Context
	f         *Fetcher
	fetchPage pageFunc
	chunk     *Range

	remaining    int
	buf          []Record
	page         int
	upstreamDone bool
	err          error
}

// Next returns the next record, or ErrStreamDone when the stream is
// exhausted. Any other error is terminal for the stream.
func (s *Stream) Next() (Record, error) {
	for {
		if s.err != nil {
			return nil, s.err
		}
		if s.remaining <= 0 {
			s.err = ErrStreamDone
			return nil, s.err
		}

		if len(s.buf) > 0 {
			rec := s.buf[0]
			s.buf = s.buf[1:]

			id := rec.RecordID()
			if id != "" {
				if _, dup := s.f.seen[id]; dup {
					s.f.logger.DebugWithFields("dropping duplicate record", map[string]interface{}{
						"id":   id,
						"mode": s.f.mode,
					})
					continue
				}
				s.f.seen[id] = struct{}{}
			}

			s.remaining--
			return rec, nil
		}

		if s.upstreamDone {
			s.err = ErrStreamDone
			return nil, s.err
		}

		if err := s.requestPage(); err != nil {
			s.err = err
			return nil, err
		}
	}
}

// Drain pulls every remaining record into the given callback
func (s *Stream) Drain(emit func(Record) error) (int, error) {
	count := 0
	for {
		rec, err := s.Next()
		if err != nil {
			if goerrors.Is(err, ErrStreamDone) {
				return count, nil
			}
			return count, err
		}
		if err := emit(rec); err != nil {
			return count, err
		}
		count++
	}
}

func (s *Stream) requestPage() error {
	s.page++

	maxCount := s.f.pageSize
	if s.remaining < maxCount {
		maxCount = s.remaining
	}

	records, hasMore, err := s.fetchPage(s.ctx, maxCount)
	if err != nil {
		fe := &errors.FetchError{
			Mode:  s.f.mode,
			Input: s.f.input,
			Page:  s.page,
			Err:   err,
		}
		if s.chunk != nil {
			fe.ChunkStart = s.chunk.WireStart()
			fe.ChunkEnd = s.chunk.WireEnd()
		}
		return fe
	}

	s.buf = records
	if !hasMore || len(records) == 0 {
		// An empty page with has_more set would loop forever; end the
		// chunk instead.
		s.upstreamDone = true
	}

	fields := map[string]interface{}{
		"mode":     s.f.mode,
		"page":     s.page,
		"records":  len(records),
		"has_more": hasMore,
	}
	if s.chunk != nil {
		fields["chunk"] = s.chunk.String()
	}
	s.f.logger.DebugWithFields("fetched page", fields)
	return nil
}

// Videos returns a stream over the video query endpoint for one date
// chunk, bounded by remaining.
func (f *Fetcher) Videos(ctx context.Context, filter *FilterTree, chunk Range, remaining int) *Stream {
	req := &videoQueryRequest{
		Query:     filter,
		StartDate: chunk.WireStart(),
		EndDate:   chunk.WireEnd(),
	}

	fetch := func(ctx context.Context, maxCount int) ([]Record, bool, error) {
		req.MaxCount = maxCount
		data, err := f.client.queryVideos(ctx, req)
		if err != nil {
			return nil, false, err
		}
		records := make([]Record, len(data.Videos))
		for i := range data.Videos {
			records[i] = &data.Videos[i]
		}
		if data.HasMore {
			req.Cursor = data.Cursor
			req.SearchID = data.SearchID
		}
		return records, data.HasMore, nil
	}

	return &Stream{ctx: ctx, f: f, fetchPage: fetch, chunk: &chunk, remaining: remaining}
}

// Comments returns a stream over the comment list endpoint. The comment
// endpoint is not date-windowed, so there is no chunk context.
func (f *Fetcher) Comments(ctx context.Context, videoID int64, remaining int) *Stream {
	req := &commentListRequest{VideoID: videoID}

	fetch := func(ctx context.Context, maxCount int) ([]Record, bool, error) {
		req.MaxCount = maxCount
		data, err := f.client.listComments(ctx, req)
		if err != nil {
			return nil, false, err
		}
		records := make([]Record, len(data.Comments))
		for i := range data.Comments {
			records[i] = &data.Comments[i]
		}
		if data.HasMore {
			req.Cursor = data.Cursor
		}
		return records, data.HasMore, nil
	}

	return &Stream{ctx: ctx, f: f, fetchPage: fetch, remaining: remaining}
}

// customQueryRequest is the wire payload for a caller-supplied filter
type customQueryRequest struct {
	Query     interface{} `json:"query"`
	StartDate string      `json:"start_date,omitempty"`
	EndDate   string      `json:"end_date,omitempty"`
	MaxCount  int         `json:"max_count"`
	Cursor    int64       `json:"cursor,omitempty"`
	SearchID  string      `json:"search_id,omitempty"`
}

// Custom returns a stream for a pre-built filter against an explicit
// endpoint URL. This is the bring-your-own-filter path; it runs through
// the same token, rate-limit and retry machinery as the CLI-built
// queries.
func (f *Fetcher) Custom(ctx context.Context, reqURL string, query interface{}, chunk *Range, remaining int) *Stream {
	req := &customQueryRequest{Query: query}
	if chunk != nil {
		req.StartDate = chunk.WireStart()
		req.EndDate = chunk.WireEnd()
	}

	fetch := func(ctx context.Context, maxCount int) ([]Record, bool, error) {
		req.MaxCount = maxCount
		var data customQueryData
		if err := f.client.Post(ctx, reqURL, req, &data); err != nil {
			return nil, false, err
		}
		records := make([]Record, len(data.Videos))
		for i, raw := range data.Videos {
			records[i] = newRawRecord(raw)
		}
		if data.HasMore {
			req.Cursor = data.Cursor
			req.SearchID = data.SearchID
		}
		return records, data.HasMore, nil
	}

	return &Stream{ctx: ctx, f: f, fetchPage: fetch, chunk: chunk, remaining: remaining}
}

// ParseVideoID validates a CLI-supplied video identifier
func ParseVideoID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrorTypeInvalidInput, "invalid video id %q", s)
	}
	return id, nil
}
