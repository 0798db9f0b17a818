package collector

import (
	"strings"
	"time"

	"tikresearch/pkg/errors"
	"tikresearch/pkg/tiktok"
)

// Mode selects which resource kind a run collects
type Mode string

const (
	ModeUser     Mode = "user"
	ModeSearch   Mode = "search"
	ModeComments Mode = "comments"
)

// ParseMode validates the CLI query option
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUser, ModeSearch, ModeComments:
		return Mode(s), nil
	default:
		return "", errors.New(errors.ErrorTypeInvalidInput,
			"unknown query option %q, expected user, search or comments", s)
	}
}

// Request is the fully resolved intent of one CLI invocation
type Request struct {
	Mode  Mode
	Input string

	// Query drives the video modes (search, user video history)
	Query tiktok.Query

	// Username is set in user mode
	Username string

	// VideoID is set in comments mode
	VideoID int64

	// Keywords are the split, trimmed search terms
	Keywords []string
}

// BuildRequest translates CLI-level intent into the vendor's structured
// filter payload. regions, when non-empty, restricts video queries to
// those region codes.
func BuildRequest(mode Mode, input string, maxCount int, start, end time.Time, regions []string) (*Request, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New(errors.ErrorTypeInvalidInput, "query input must not be empty")
	}
	if maxCount <= 0 {
		return nil, errors.New(errors.ErrorTypeInvalidInput, "collect max must be positive, got %d", maxCount)
	}

	req := &Request{Mode: mode, Input: input}

	switch mode {
	case ModeUser:
		// Profile lookups return at most one record
		req.Username = input
		req.Query = tiktok.Query{
			Filter: &tiktok.FilterTree{
				And: withRegions([]tiktok.Clause{
					tiktok.P(tiktok.OpEq, tiktok.FieldUsername, input),
				}, regions),
			},
			MaxCount: 1,
			Start:    start,
			End:      end,
		}

	case ModeSearch:
		keywords := splitKeywords(input)
		if len(keywords) == 0 {
			return nil, errors.New(errors.ErrorTypeInvalidInput, "no usable keywords in %q", input)
		}
		req.Keywords = keywords

		filter := &tiktok.FilterTree{
			// The vendor treats plain keywords and hashtags as distinct
			// fields; matching both widens recall for mixed inputs.
			Or: []tiktok.Clause{
				tiktok.P(tiktok.OpIn, tiktok.FieldKeyword, keywords...),
				tiktok.P(tiktok.OpIn, tiktok.FieldHashtagName, keywords...),
			},
		}
		if len(regions) > 0 {
			filter.And = withRegions(nil, regions)
		}
		req.Query = tiktok.Query{
			Filter:   filter,
			MaxCount: maxCount,
			Start:    start,
			End:      end,
		}

	case ModeComments:
		videoID, err := tiktok.ParseVideoID(input)
		if err != nil {
			return nil, err
		}
		req.VideoID = videoID
		req.Query = tiktok.Query{MaxCount: maxCount}

	default:
		return nil, errors.New(errors.ErrorTypeInvalidInput,
			"unknown query option %q, expected user, search or comments", string(mode))
	}

	return req, nil
}

// splitKeywords splits a comma-separated keyword list, trimming
// whitespace and dropping empty entries.
func splitKeywords(input string) []string {
	var keywords []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keywords = append(keywords, trimmed)
		}
	}
	return keywords
}

func withRegions(clauses []tiktok.Clause, regions []string) []tiktok.Clause {
	if len(regions) == 0 {
		return clauses
	}
	return append(clauses, tiktok.P(tiktok.OpIn, tiktok.FieldRegionCode, regions...))
}
