package musicapi

import (
	"net/http"
	"strings"
	"time"
)

const (
	apiKeyHeader     = "X-API-KEY"
	defaultUserAgent = "naviplay"
	defaultPageSize  = 50
)

func Init(baseURL, apiKey, userAgent string, timeout time.Duration) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		UserAgent:  userAgent,
		PageSize:   defaultPageSize,
		HttpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set(apiKeyHeader, c.APIKey)
	req.Header.Set("User-Agent", c.UserAgent)
}
