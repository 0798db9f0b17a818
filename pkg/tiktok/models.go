package tiktok

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Filter predicate operations recognized by the vendor API.
const (
	OpIn  = "IN"
	OpEq  = "EQ"
	OpGt  = "GT"
	OpGte = "GTE"
	OpLt  = "LT"
	OpLte = "LTE"
)

// Field names used by the CLI-driven query paths.
const (
	FieldUsername    = "username"
	FieldKeyword     = "keyword"
	FieldHashtagName = "hashtag_name"
	FieldRegionCode  = "region_code"
)

// Predicate is a single field-level filter condition
type Predicate struct {
	Operation   string   `json:"operation"`
	FieldName   string   `json:"field_name"`
	FieldValues []string `json:"field_values"`
}

// Clause is one branch of a FilterTree: either a field predicate or a
// nested tree. Exactly one of the embedded pointers is set; the JSON
// encoder skips fields behind the nil one.
type Clause struct {
	*Predicate
	*FilterTree
}

// FilterTree is the boolean composition (AND/OR/NOT) of clauses sent as a
// query's filter. The CLI builds flat trees; nested trees are reachable
// through the custom-query path.
type FilterTree struct {
	And []Clause `json:"and,omitempty"`
	Or  []Clause `json:"or,omitempty"`
	Not []Clause `json:"not,omitempty"`
}

// P wraps a predicate as a clause
func P(operation, fieldName string, values ...string) Clause {
	return Clause{Predicate: &Predicate{
		Operation:   operation,
		FieldName:   fieldName,
		FieldValues: values,
	}}
}

// Tree wraps a nested filter tree as a clause
func Tree(t *FilterTree) Clause {
	return Clause{FilterTree: t}
}

// Query is one logical collection request, built once per invocation
type Query struct {
	Filter   *FilterTree
	MaxCount int
	Start    time.Time
	End      time.Time
}

// UnixDate is a unix timestamp that renders as a YYYY-MM-DD string when
// written to a sink.
type UnixDate int64

func (d UnixDate) String() string {
	return time.Unix(int64(d), 0).UTC().Format("2006-01-02")
}

func (d UnixDate) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *UnixDate) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("create_time: %w", err)
	}
	*d = UnixDate(n)
	return nil
}

// Record is any result item identified by a vendor-assigned ID
type Record interface {
	RecordID() string
}

// UserProfile is the user info endpoint's single-record result
type UserProfile struct {
	Username       string  `json:"username"`
	DisplayName    string  `json:"display_name"`
	BioDescription string  `json:"bio_description"`
	AvatarURL      string  `json:"avatar_url"`
	IsVerified     bool    `json:"is_verified"`
	FollowerCount  int64   `json:"follower_count"`
	FollowingCount int64   `json:"following_count"`
	LikesCount     int64   `json:"likes_count"`
	VideoCount     int64   `json:"video_count"`
	Videos         []Video `json:"videos,omitempty"`
}

func (u *UserProfile) RecordID() string { return u.Username }

// Video is one item from the video query endpoint
type Video struct {
	ID               int64    `json:"id"`
	RegionCode       string   `json:"region_code"`
	Username         string   `json:"username"`
	VideoDescription string   `json:"video_description"`
	MusicID          int64    `json:"music_id"`
	LikeCount        int64    `json:"like_count"`
	CommentCount     int64    `json:"comment_count"`
	ShareCount       int64    `json:"share_count"`
	ViewCount        int64    `json:"view_count"`
	EffectIDs        []string `json:"effect_ids"`
	HashtagNames     []string `json:"hashtag_names"`
	PlaylistID       int64    `json:"playlist_id"`
	VoiceToText      string   `json:"voice_to_text"`
	CreateTime       UnixDate `json:"create_time"`
}

func (v *Video) RecordID() string { return strconv.FormatInt(v.ID, 10) }

// Comment is one item from the comment list endpoint
type Comment struct {
	ID              int64    `json:"id"`
	VideoID         int64    `json:"video_id"`
	ParentCommentID int64    `json:"parent_comment_id"`
	Text            string   `json:"text"`
	LikeCount       int64    `json:"like_count"`
	ReplyCount      int64    `json:"reply_count"`
	CreateTime      UnixDate `json:"create_time"`
}

func (c *Comment) RecordID() string { return strconv.FormatInt(c.ID, 10) }

// videoQueryRequest is the wire payload for one video query page
type videoQueryRequest struct {
	Query     *FilterTree `json:"query"`
	StartDate string      `json:"start_date"`
	EndDate   string      `json:"end_date"`
	MaxCount  int         `json:"max_count"`
	Cursor    int64       `json:"cursor,omitempty"`
	SearchID  string      `json:"search_id,omitempty"`
}

// commentListRequest is the wire payload for one comment list page
type commentListRequest struct {
	VideoID  int64 `json:"video_id"`
	MaxCount int   `json:"max_count"`
	Cursor   int64 `json:"cursor,omitempty"`
}

// userInfoRequest is the wire payload for a profile lookup
type userInfoRequest struct {
	Username string `json:"username"`
}

// envelope is the common response wrapper
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

// apiError is the vendor's error object; code "ok" means success
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// videoQueryData is the data object of a video query response
type videoQueryData struct {
	Videos   []Video `json:"videos"`
	Cursor   int64   `json:"cursor"`
	HasMore  bool    `json:"has_more"`
	SearchID string  `json:"search_id"`
}

// commentListData is the data object of a comment list response
type commentListData struct {
	Comments []Comment `json:"comments"`
	Cursor   int64     `json:"cursor"`
	HasMore  bool      `json:"has_more"`
}

// customQueryData is the data object of a custom video query response;
// items are kept raw since the caller picked the field selection.
type customQueryData struct {
	Videos   []json.RawMessage `json:"videos"`
	Cursor   int64             `json:"cursor"`
	HasMore  bool              `json:"has_more"`
	SearchID string            `json:"search_id"`
}

// RawRecord is one item from a custom query, preserved as returned
type RawRecord struct {
	id  string
	Raw json.RawMessage
}

func (r *RawRecord) RecordID() string { return r.id }

func (r *RawRecord) MarshalJSON() ([]byte, error) { return r.Raw, nil }

// newRawRecord extracts the id field when present so that custom results
// still deduplicate across chunk boundaries.
func newRawRecord(raw json.RawMessage) *RawRecord {
	var probe struct {
		ID json.Number `json:"id"`
	}
	rec := &RawRecord{Raw: raw}
	if err := json.Unmarshal(raw, &probe); err == nil {
		rec.id = probe.ID.String()
	}
	return rec
}
