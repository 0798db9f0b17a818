package tiktok

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterTreeMarshalFlat(t *testing.T) {
	filter := &FilterTree{
		Or: []Clause{
			P(OpIn, FieldKeyword, "climate", "global warming"),
			P(OpIn, FieldHashtagName, "climate", "global warming"),
		},
	}

	data, err := json.Marshal(filter)
	require.NoError(t, err)

	expected := `{
		"or": [
			{"operation":"IN","field_name":"keyword","field_values":["climate","global warming"]},
			{"operation":"IN","field_name":"hashtag_name","field_values":["climate","global warming"]}
		]
	}`
	assert.JSONEq(t, expected, string(data))
}

func TestFilterTreeMarshalNested(t *testing.T) {
	filter := &FilterTree{
		And: []Clause{
			P(OpEq, FieldUsername, "john_doe"),
			Tree(&FilterTree{
				Not: []Clause{
					P(OpIn, FieldRegionCode, "US"),
				},
			}),
		},
	}

	data, err := json.Marshal(filter)
	require.NoError(t, err)

	expected := `{
		"and": [
			{"operation":"EQ","field_name":"username","field_values":["john_doe"]},
			{"not": [{"operation":"IN","field_name":"region_code","field_values":["US"]}]}
		]
	}`
	assert.JSONEq(t, expected, string(data))
}

func TestUnixDateRendersAsDate(t *testing.T) {
	// 2023-06-15 12:00:00 UTC
	var d UnixDate
	require.NoError(t, json.Unmarshal([]byte("1686830400"), &d))
	assert.Equal(t, "2023-06-15", d.String())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2023-06-15"`, string(out))
}

func TestVideoDecodesAndRendersTimestamp(t *testing.T) {
	raw := `{"id": 7178217441201933314, "username": "john_doe", "create_time": 1686830400}`

	var v Video
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	assert.Equal(t, int64(7178217441201933314), v.ID)
	assert.Equal(t, "7178217441201933314", v.RecordID())

	out, err := json.Marshal(&v)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"create_time":"2023-06-15"`)
}

func TestRawRecordKeepsIDAndPayload(t *testing.T) {
	raw := json.RawMessage(`{"id": 123456789, "region_code": "DE"}`)
	rec := newRawRecord(raw)

	assert.Equal(t, "123456789", rec.RecordID())

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

func TestRawRecordWithoutID(t *testing.T) {
	rec := newRawRecord(json.RawMessage(`{"region_code": "DE"}`))
	assert.Equal(t, "", rec.RecordID())
}

func TestVideoQueryRequestOmitsEmptyCursor(t *testing.T) {
	req := &videoQueryRequest{
		Query:     &FilterTree{And: []Clause{P(OpEq, FieldUsername, "a")}},
		StartDate: "20230101",
		EndDate:   "20230131",
		MaxCount:  100,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "cursor")
	assert.NotContains(t, string(data), "search_id")

	req.Cursor = 100
	req.SearchID = "abc"
	data, err = json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cursor":100`)
	assert.Contains(t, string(data), `"search_id":"abc"`)
}
