package library

import (
	"context"

	"github.com/yhkl-dev/naviplay/domain"
)

// SearchQuery filters a catalog search. Zero values mean "no filter".
type SearchQuery struct {
	Query  string
	Random bool
	Album  string
	Artist string
	Limit  int
	Offset int
}

type Library interface {
	SearchTracks(ctx context.Context, q SearchQuery) ([]domain.Track, error)
	FetchLyrics(ctx context.Context, lyricURL string) (string, error)
	Ping(ctx context.Context) error
}
