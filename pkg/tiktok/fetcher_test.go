package tiktok

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "tikresearch/pkg/errors"
	"tikresearch/pkg/logger"
	"tikresearch/pkg/ratelimit"
)

// testAPI is a mock research API. The query and comment handlers are
// swappable per test; the token endpoint always succeeds.
type testAPI struct {
	server     *httptest.Server
	tokenCalls int32
	queryCalls int32

	onQuery    func(w http.ResponseWriter, req *videoQueryRequest)
	onComments func(w http.ResponseWriter, req *commentListRequest)
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	api := &testAPI{}

	mux := http.NewServeMux()
	mux.HandleFunc(TokenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok_abc","expires_in":7200,"token_type":"Bearer"}`))
	})
	mux.HandleFunc(VideoQueryEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.queryCalls, 1)
		require.Equal(t, "Bearer tok_abc", r.Header.Get("Authorization"))

		var req videoQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		api.onQuery(w, &req)
	})
	mux.HandleFunc(CommentListEndpoint, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.queryCalls, 1)

		var req commentListRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		api.onComments(w, &req)
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (api *testAPI) client(t *testing.T, maxRetries int) *Client {
	t.Helper()
	tokens := NewTokenManager(testCreds(), api.server.URL, 5*time.Second, logger.NewNop())
	return NewClient(tokens, ClientOptions{
		BaseURL:     api.server.URL,
		MaxRetries:  maxRetries,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		RateLimiter: ratelimit.Unlimited{},
		Logger:      logger.NewNop(),
	})
}

// videoPage writes a successful envelope holding the given video IDs
func videoPage(w http.ResponseWriter, ids []int64, cursor int64, hasMore bool) {
	videos := make([]map[string]interface{}, len(ids))
	for i, id := range ids {
		videos[i] = map[string]interface{}{
			"id":          id,
			"username":    "someone",
			"create_time": 1686830400,
		}
	}
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"videos":    videos,
			"cursor":    cursor,
			"has_more":  hasMore,
			"search_id": "sid_1",
		},
		"error": map[string]interface{}{"code": "ok", "message": "", "log_id": "log_1"},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func seq(start int64, n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = start + int64(i)
	}
	return ids
}

func mustChunk(t *testing.T, start, end string) Range {
	t.Helper()
	s, err := ParseDate(start)
	require.NoError(t, err)
	e, err := ParseDate(end)
	require.NoError(t, err)
	return Range{Start: s, End: e}
}

func TestStreamHonorsCollectBound(t *testing.T) {
	api := newTestAPI(t)
	var next int64 = 1
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		// Always claims more data; the stream has to stop on its own
		ids := seq(next, req.MaxCount)
		next += int64(req.MaxCount)
		videoPage(w, ids, next, true)
	}

	f := NewFetcher(api.client(t, 3), 10, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 25)

	var got []Record
	count, err := stream.Drain(func(rec Record) error {
		got = append(got, rec)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 25, count)
	assert.Len(t, got, 25)
	assert.Equal(t, 25, f.Seen())

	// 10 + 10 + 5, and not a single request past the bound
	assert.Equal(t, int32(3), atomic.LoadInt32(&api.queryCalls))
}

func TestStreamStopsMidPageWithoutExtraRequests(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		// Over-delivers relative to max_count
		videoPage(w, seq(1, 10), 10, true)
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 5)

	count, err := stream.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.queryCalls))

	// Exhausted stream stays exhausted
	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrStreamDone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.queryCalls))
}

func TestStreamDeduplicatesAcrossPages(t *testing.T) {
	api := newTestAPI(t)
	page := 0
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		page++
		switch page {
		case 1:
			videoPage(w, []int64{1, 2, 3, 4, 5}, 5, true)
		default:
			// Overlap with the previous page at the cursor boundary
			videoPage(w, []int64{4, 5, 6, 7}, 9, false)
		}
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 100)

	var ids []string
	count, err := stream.Drain(func(rec Record) error {
		ids = append(ids, rec.RecordID())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7"}, ids)
}

func TestDeduplicationSpansChunks(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		// Both chunks return the same three items
		videoPage(w, []int64{1, 2, 3}, 3, false)
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())

	first := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 100)
	count, err := first.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Same fetcher, next date chunk: duplicates are dropped and do not
	// count toward the remaining budget
	second := f.Videos(context.Background(), nil, mustChunk(t, "2023-02-01", "2023-02-28"), 97)
	count, err = second.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 3, f.Seen())
}

func TestStreamDuplicatesDoNotConsumeBudget(t *testing.T) {
	api := newTestAPI(t)
	page := 0
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		page++
		switch page {
		case 1:
			videoPage(w, []int64{1, 2, 1, 2, 3}, 5, true)
		default:
			videoPage(w, []int64{4, 5}, 7, false)
		}
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 5)

	count, err := stream.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 5, count, "in-page duplicates should not eat into the budget")
}

func TestUnauthorizedTriggersOneRefreshAndRetry(t *testing.T) {
	api := newTestAPI(t)
	var rejected int32
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		if atomic.CompareAndSwapInt32(&rejected, 0, 1) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		videoPage(w, []int64{1, 2}, 2, false)
	}

	f := NewFetcher(api.client(t, 3), 100, "user", "john_doe", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 10)

	count, err := stream.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Original token, then one more after the 401 invalidated it
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.queryCalls))
}

func TestUnauthorizedTwiceFailsHard(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		w.WriteHeader(http.StatusForbidden)
	}

	f := NewFetcher(api.client(t, 3), 100, "user", "john_doe", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 10)

	_, err := stream.Drain(func(Record) error { return nil })
	require.Error(t, err)

	var fetchErr *errs.FetchError
	require.ErrorAs(t, err, &fetchErr)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.ErrorTypeAuth, apiErr.Type)

	// One refresh-and-retry, then a hard failure with no backoff retries
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.queryCalls))
}

func TestServerErrorsAreRetried(t *testing.T) {
	api := newTestAPI(t)
	var failures int32 = 2
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		if atomic.AddInt32(&failures, -1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		videoPage(w, []int64{1}, 1, false)
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 10)

	count, err := stream.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int32(3), atomic.LoadInt32(&api.queryCalls))
}

func TestRetryExhaustionYieldsFetchError(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	f := NewFetcher(api.client(t, 2), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-03-01", "2023-03-31"), 10)

	_, err := stream.Drain(func(Record) error { return nil })
	require.Error(t, err)

	var fetchErr *errs.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "search", fetchErr.Mode)
	assert.Equal(t, "climate", fetchErr.Input)
	assert.Equal(t, "20230301", fetchErr.ChunkStart)
	assert.Equal(t, "20230331", fetchErr.ChunkEnd)
	assert.Equal(t, 1, fetchErr.Page)

	assert.Equal(t, int32(2), atomic.LoadInt32(&api.queryCalls))
}

func TestEnvelopeErrorSurfaces(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{},"error":{"code":"invalid_params","message":"query is malformed","log_id":"log_9"}}`)
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 10)

	_, err := stream.Drain(func(Record) error { return nil })
	require.Error(t, err)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.ErrorTypeInvalidInput, apiErr.Type)
	assert.Contains(t, apiErr.Message, "query is malformed")

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.queryCalls))
}

func TestCommentsPagination(t *testing.T) {
	api := newTestAPI(t)
	api.onComments = func(w http.ResponseWriter, req *commentListRequest) {
		assert.Equal(t, int64(7178217441201933314), req.VideoID)

		comments := []map[string]interface{}{}
		base := req.Cursor
		for i := int64(0); i < 3; i++ {
			comments = append(comments, map[string]interface{}{
				"id":          base + i + 1,
				"video_id":    req.VideoID,
				"text":        "hi",
				"create_time": 1686830400,
			})
		}
		hasMore := base < 3
		resp := map[string]interface{}{
			"data": map[string]interface{}{
				"comments": comments,
				"cursor":   base + 3,
				"has_more": hasMore,
			},
			"error": map[string]interface{}{"code": "ok"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}

	f := NewFetcher(api.client(t, 3), 100, "comments", "7178217441201933314", logger.NewNop())
	stream := f.Comments(context.Background(), 7178217441201933314, 50)

	count, err := stream.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.queryCalls))
}

func TestCustomStream(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		videoPage(w, []int64{11, 12}, 2, false)
	}

	f := NewFetcher(api.client(t, 3), 100, "custom", "regions", logger.NewNop())
	reqURL := api.server.URL + VideoQueryEndpoint + "?fields=id,username"
	chunk := mustChunk(t, "2023-01-01", "2023-01-31")

	query := json.RawMessage(`{"and":[{"operation":"IN","field_name":"region_code","field_values":["DE"]}]}`)
	stream := f.Custom(context.Background(), reqURL, query, &chunk, 10)

	var ids []string
	count, err := stream.Drain(func(rec Record) error {
		ids = append(ids, rec.RecordID())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"11", "12"}, ids)
}

func TestEmptyFirstPageEndsStream(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		videoPage(w, nil, 0, true)
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "nothing", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 10)

	count, err := stream.Drain(func(Record) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.queryCalls))
}

func TestParseVideoID(t *testing.T) {
	id, err := ParseVideoID("7178217441201933314")
	require.NoError(t, err)
	assert.Equal(t, int64(7178217441201933314), id)

	for _, bad := range []string{"", "abc", "-5", "0", "12.5"} {
		_, err := ParseVideoID(bad)
		require.Error(t, err, "input %q", bad)

		var apiErr *errs.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, errs.ErrorTypeInvalidInput, apiErr.Type)
	}
}

func TestStreamErrorIsSticky(t *testing.T) {
	api := newTestAPI(t)
	api.onQuery = func(w http.ResponseWriter, req *videoQueryRequest) {
		w.WriteHeader(http.StatusBadRequest)
	}

	f := NewFetcher(api.client(t, 3), 100, "search", "climate", logger.NewNop())
	stream := f.Videos(context.Background(), nil, mustChunk(t, "2023-01-01", "2023-01-31"), 10)

	_, err := stream.Next()
	require.Error(t, err)
	require.False(t, goerrors.Is(err, ErrStreamDone))

	_, again := stream.Next()
	assert.Equal(t, err, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.queryCalls))
}
