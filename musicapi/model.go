package musicapi

import (
	"net/http"
)

// Client talks to the upstream catalog API.
type Client struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	PageSize   int
	HttpClient *http.Client
}

// Song is a catalog record as served by GET /songs.
type Song struct {
	URL      string  `json:"url"`
	LRC      string  `json:"lrc"`
	Cover    string  `json:"cover"`
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration,omitempty"` // in seconds
}

// ErrorResponse is the body returned with non-2xx statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// SongParams are the query parameters of GET /songs. Zero values are
// omitted from the request.
type SongParams struct {
	Query  string
	Random bool
	Album  string
	Artist string
	Limit  int
	Offset int
}
