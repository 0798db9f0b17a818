package tiktok

import "net/url"

const (
	// DefaultBaseURL is the base URL for the TikTok Research API
	DefaultBaseURL = "https://open.tiktokapis.com"

	// TokenEndpoint issues client-credential access tokens
	TokenEndpoint = "/v2/oauth/token/"

	// UserInfoEndpoint returns a single user profile
	UserInfoEndpoint = "/v2/research/user/info/"

	// VideoQueryEndpoint is the paginated video search endpoint
	VideoQueryEndpoint = "/v2/research/video/query/"

	// CommentListEndpoint is the paginated comment list endpoint
	CommentListEndpoint = "/v2/research/video/comment/list/"
)

// Per-endpoint field selections. The API returns only the fields named in
// the request's fields query parameter.
const (
	UserFields = "display_name,bio_description,avatar_url,is_verified,follower_count,following_count,likes_count,video_count"

	VideoFields = "id,region_code,like_count,username,video_description,music_id,comment_count,share_count,view_count,effect_ids,hashtag_names,playlist_id,voice_to_text,create_time"

	CommentFields = "id,like_count,create_time,text,video_id,parent_comment_id,reply_count"
)

// EndpointURL joins the base URL, endpoint path and fields selection
func EndpointURL(baseURL, endpoint, fields string) string {
	if fields == "" {
		return baseURL + endpoint
	}
	params := url.Values{}
	params.Set("fields", fields)
	return baseURL + endpoint + "?" + params.Encode()
}
