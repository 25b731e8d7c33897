package musicapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

func (c *Client) buildParams(p SongParams) url.Values {
	params := url.Values{}
	if p.Query != "" {
		params.Set("q", p.Query)
	}
	if p.Random {
		params.Set("random", "true")
	}
	if p.Album != "" {
		params.Set("album", p.Album)
	}
	if p.Artist != "" {
		params.Set("artist", p.Artist)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = c.PageSize
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if p.Offset > 0 {
		params.Set("offset", strconv.Itoa(p.Offset))
	}
	return params
}

// SearchSongs queries GET /songs.
func (c *Client) SearchSongs(ctx context.Context, p SongParams) ([]Song, error) {
	requestURL := fmt.Sprintf("%s/songs?%s", c.BaseURL, c.buildParams(p).Encode())
	body, err := c.get(ctx, requestURL, "application/json")
	if err != nil {
		return nil, err
	}

	var songs []Song
	if err := json.Unmarshal(body, &songs); err != nil {
		return nil, fmt.Errorf("decode songs: %w", err)
	}
	return songs, nil
}

// Ping checks that the catalog is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.SearchSongs(ctx, SongParams{Limit: 1})
	return err
}

// FetchLyrics downloads the lyric text behind a song's lrc locator. A JSON
// string body is unquoted.
func (c *Client) FetchLyrics(ctx context.Context, lyricURL string) (string, error) {
	if lyricURL == "" {
		return "", fmt.Errorf("missing lyric url")
	}
	body, err := c.get(ctx, lyricURL, "text/plain, application/json")
	if err != nil {
		return "", err
	}

	text := string(body)
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			text = s
		}
	}
	return text, nil
}

func (c *Client) get(ctx context.Context, requestURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	c.authorize(req)

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("catalog error %d: %s: %s", resp.StatusCode, apiErr.Error, apiErr.Message)
		}
		return nil, fmt.Errorf("unexpected status: %d, response: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
