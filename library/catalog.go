package library

import (
	"context"
	"math"

	"github.com/yhkl-dev/naviplay/domain"
	"github.com/yhkl-dev/naviplay/musicapi"
)

type CatalogLibrary struct {
	client *musicapi.Client
}

func NewCatalogLibrary(client *musicapi.Client) *CatalogLibrary {
	return &CatalogLibrary{
		client: client,
	}
}

func (l *CatalogLibrary) SearchTracks(ctx context.Context, q SearchQuery) ([]domain.Track, error) {
	songs, err := l.client.SearchSongs(ctx, musicapi.SongParams{
		Query:  q.Query,
		Random: q.Random,
		Album:  q.Album,
		Artist: q.Artist,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		return nil, err
	}
	return convertToDomainTracks(songs), nil
}

func (l *CatalogLibrary) FetchLyrics(ctx context.Context, lyricURL string) (string, error) {
	return l.client.FetchLyrics(ctx, lyricURL)
}

func (l *CatalogLibrary) Ping(ctx context.Context) error {
	return l.client.Ping(ctx)
}

func convertToDomainTracks(songs []musicapi.Song) []domain.Track {
	tracks := make([]domain.Track, 0, len(songs))
	for _, song := range songs {
		if song.URL == "" {
			continue
		}
		tracks = append(tracks, convertToDomainTrack(song))
	}
	return tracks
}

func convertToDomainTrack(song musicapi.Song) domain.Track {
	return domain.Track{
		URL:      song.URL,
		LyricURL: song.LRC,
		Title:    song.Name,
		Artist:   song.Artist,
		Album:    song.Album,
		CoverURL: song.Cover,
		Duration: int(math.Round(song.Duration)),
	}
}
