package pipeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/franz/playlake/internal/frame"
	"github.com/franz/playlake/internal/record"
	"github.com/franz/playlake/internal/star"
)

// Stage names used for row-flow accounting
const (
	StageDedupSongs     = "dedup_songs"
	StageDedupArtists   = "dedup_artists"
	StageFilterNextSong = "filter_next_song"
	StageDedupUsers     = "dedup_users"
	StageDedupTime      = "dedup_time"
	StageJoinSongTitle  = "join_song_title"
	StageJoinArtistName = "join_artist_name"
	StageJoinStartTime  = "join_start_time"
)

// ObserveFunc receives the row counts entering and leaving a stage
type ObserveFunc func(stage string, rowsIn, rowsOut int)

func (o ObserveFunc) observe(stage string, rowsIn, rowsOut int) {
	if o != nil {
		o(stage, rowsIn, rowsOut)
	}
}

// Songs projects catalog records onto the songs dimension, one row per
// distinct tuple.
func Songs(catalog *frame.Frame[record.Catalog], observe ObserveFunc) *frame.Frame[star.Song] {
	projected := frame.Project(catalog, func(c record.Catalog) star.Song {
		return star.Song{
			SongID:   c.SongID,
			Title:    c.Title,
			ArtistID: c.ArtistID,
			Year:     c.Year,
			Duration: c.Duration,
		}
	})
	songs := frame.DedupExact(projected)
	observe.observe(StageDedupSongs, projected.Count(), songs.Count())
	return songs
}

// Artists projects catalog records onto the artists dimension, one row per
// distinct tuple. An artist whose location differs between catalog records
// keeps one row per variant.
func Artists(catalog *frame.Frame[record.Catalog], observe ObserveFunc) *frame.Frame[star.Artist] {
	projected := frame.Project(catalog, func(c record.Catalog) star.Artist {
		return star.Artist{
			ArtistID:  c.ArtistID,
			Name:      c.ArtistName,
			Location:  c.ArtistLocation,
			Latitude:  c.ArtistLatitude,
			Longitude: c.ArtistLongitude,
		}
	})
	artists := frame.DedupExact(projected)
	observe.observe(StageDedupArtists, projected.Count(), artists.Count())
	return artists
}

// Play is a NextSong activity record with its formatted start time
type Play struct {
	record.Activity
	StartTime sql.Null[string]
}

// Plays keeps the NextSong records of the activity log and stamps each with
// its start_time in loc.
func Plays(activity *frame.Frame[record.Activity], loc *time.Location, observe ObserveFunc) *frame.Frame[Play] {
	filtered := activity.Filter(record.Activity.IsPlay)
	observe.observe(StageFilterNextSong, activity.Count(), filtered.Count())

	return frame.Project(filtered, func(a record.Activity) Play {
		return Play{Activity: a, StartTime: FormatStartTime(a.TS, loc)}
	})
}

// Users projects plays onto the users dimension, one row per distinct
// tuple. A user seen at two subscription levels keeps both rows.
func Users(plays *frame.Frame[Play], observe ObserveFunc) *frame.Frame[star.User] {
	projected := frame.Project(plays, func(p Play) star.User {
		return star.User{
			UserID:    p.UserID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Gender:    p.Gender,
			Level:     p.Level,
		}
	})
	users := frame.DedupExact(projected)
	observe.observe(StageDedupUsers, projected.Count(), users.Count())
	return users
}

// Times derives the time dimension from the start times of plays, one row
// per distinct start_time.
func Times(plays *frame.Frame[Play], observe ObserveFunc) *frame.Frame[star.Time] {
	projected := frame.Project(plays, func(p Play) star.Time {
		return DeriveTime(p.StartTime)
	})
	times := frame.DedupExact(projected)
	observe.observe(StageDedupTime, projected.Count(), times.Count())
	return times
}

type playSong struct {
	play Play
	song star.Song
}

type playSongArtist struct {
	playSong
	artist star.Artist
}

// Songplays enriches plays with the catalog. A play is kept once per song
// whose title equals the play's song and, for each of those, once per
// artist whose name equals the play's artist. Null keys never match. The
// time dimension is left joined on start_time and never drops a play; a
// matched time row supplies year and month.
// SongplayID is left zero; see AssignSongplayIDs.
func Songplays(plays *frame.Frame[Play], songs *frame.Frame[star.Song], artists *frame.Frame[star.Artist], times *frame.Frame[star.Time], observe ObserveFunc) *frame.Frame[star.Songplay] {
	withSong := frame.InnerJoin(plays, songs,
		func(p Play) (string, bool) { return frame.NullKey(p.Song) },
		func(s star.Song) (string, bool) { return frame.NullKey(s.Title) },
		func(p Play, s star.Song) playSong { return playSong{play: p, song: s} },
	)
	observe.observe(StageJoinSongTitle, plays.Count(), withSong.Count())

	withArtist := frame.InnerJoin(withSong, artists,
		func(ps playSong) (string, bool) { return frame.NullKey(ps.play.Artist) },
		func(a star.Artist) (string, bool) { return frame.NullKey(a.Name) },
		func(ps playSong, a star.Artist) playSongArtist { return playSongArtist{playSong: ps, artist: a} },
	)
	observe.observe(StageJoinArtistName, withSong.Count(), withArtist.Count())

	facts := frame.LeftJoin(withArtist, times,
		func(e playSongArtist) (string, bool) { return frame.NullKey(e.play.StartTime) },
		func(t star.Time) (string, bool) { return frame.NullKey(t.StartTime) },
		func(e playSongArtist, t star.Time, matched bool) star.Songplay {
			year, month := t.Year, t.Month
			if !matched {
				year, month = yearMonth(e.play.StartTime)
			}
			return star.Songplay{
				StartTime: e.play.StartTime,
				UserID:    e.play.UserID,
				Level:     e.play.Level,
				SongID:    e.song.SongID,
				ArtistID:  e.artist.ArtistID,
				SessionID: e.play.SessionID,
				Location:  e.play.Location,
				UserAgent: e.play.UserAgent,
				Year:      year,
				Month:     month,
			}
		},
	)
	observe.observe(StageJoinStartTime, withArtist.Count(), facts.Count())

	return facts
}

// MaxPartitions bounds the frame partitions of the fact table: each
// partition owns one snowflake node and node ids are 10 bits.
const MaxPartitions = 1 << 10

// AssignSongplayIDs gives every fact row a snowflake id generated by the
// node of its frame partition. Ids are unique within a run and roughly
// time ordered, but neither contiguous nor stable across runs.
func AssignSongplayIDs(facts *frame.Frame[star.Songplay]) (*frame.Frame[star.Songplay], error) {
	if facts.NumPartitions() > MaxPartitions {
		return nil, fmt.Errorf("%d partitions exceed the %d id generators", facts.NumPartitions(), MaxPartitions)
	}

	nodes := make([]*snowflake.Node, facts.NumPartitions())
	for i := range nodes {
		node, err := snowflake.NewNode(int64(i))
		if err != nil {
			return nil, fmt.Errorf("failed to create id generator %d: %w", i, err)
		}
		nodes[i] = node
	}

	return frame.MapPartitions(facts, func(part int, rows []star.Songplay) []star.Songplay {
		out := make([]star.Songplay, len(rows))
		for i, r := range rows {
			r.SongplayID = nodes[part].Generate().Int64()
			out[i] = r
		}
		return out
	}), nil
}
