package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/playlake/internal/frame"
	"github.com/franz/playlake/internal/record"
	"github.com/franz/playlake/internal/star"
)

type stageLog map[string][2]int

func (s stageLog) observe(stage string, in, out int) { s[stage] = [2]int{in, out} }

func catalog(songID, title, artistID, artistName string, year int64) record.Catalog {
	return record.Catalog{
		SongID:     str(songID),
		Title:      str(title),
		ArtistID:   str(artistID),
		ArtistName: str(artistName),
		Year:       i64(year),
	}
}

func nextSong(userID, level, song, artist string, ms int64) record.Activity {
	return record.Activity{
		Page:      str(record.PageNextSong),
		UserID:    str(userID),
		Level:     str(level),
		Song:      str(song),
		Artist:    str(artist),
		TS:        ts(ms),
		SessionID: i64(1),
	}
}

func TestSongsDedupExact(t *testing.T) {
	stages := stageLog{}
	rows := []record.Catalog{
		catalog("S1", "Soul Deep", "AR1", "The Box Tops", 1969),
		catalog("S1", "Soul Deep", "AR1", "The Box Tops", 1969),
		catalog("S2", "Soul Deep", "AR2", "Cover Band", 0),
	}

	songs := Songs(frame.FromRows(rows, 2), stages.observe)
	assert.Equal(t, 2, songs.Count())
	assert.Equal(t, [2]int{3, 2}, stages[StageDedupSongs])
	s1 := songs.Filter(func(r star.Song) bool { return r.SongID.V == "S1" })
	assert.Equal(t, 1, s1.Count())

	again := Songs(frame.FromRows(rows, 3), nil)
	assert.ElementsMatch(t, songs.Rows(), again.Rows(), "dedup does not depend on partitioning")

	artists := Artists(frame.FromRows(rows, 1), nil)
	assert.Equal(t, 2, artists.Count())
}

func TestPlaysFilter(t *testing.T) {
	stages := stageLog{}
	rows := []record.Activity{
		nextSong("26", "free", "Soul Deep", "The Box Tops", 1542242826796),
		{Page: str("Home"), UserID: str("99"), TS: ts(1542242826796)},
		{UserID: str("98"), TS: ts(1542242826796)},
	}

	plays := Plays(frame.FromRows(rows, 2), time.UTC, stages.observe)
	require.Equal(t, 1, plays.Count())
	assert.Equal(t, str("2018-11-15 00:47:06"), plays.Rows()[0].StartTime)
	assert.Equal(t, [2]int{3, 1}, stages[StageFilterNextSong])

	users := Users(plays, nil)
	assert.Equal(t, []star.User{{UserID: str("26"), Level: str("free")}}, users.Rows())
}

func TestUsersKeepsEveryLevel(t *testing.T) {
	rows := []record.Activity{
		nextSong("26", "free", "a", "x", 1000),
		nextSong("26", "free", "b", "y", 2000),
		nextSong("26", "paid", "c", "z", 3000),
	}

	users := Users(Plays(frame.FromRows(rows, 2), time.UTC, nil), nil)
	assert.Equal(t, 2, users.Count())
}

func TestTimesOneRowPerStartTime(t *testing.T) {
	rows := []record.Activity{
		nextSong("1", "free", "a", "x", 1542242826796),
		nextSong("2", "free", "b", "y", 1542242826001), // same second
		nextSong("3", "free", "c", "z", 1542253449796),
	}

	times := Times(Plays(frame.FromRows(rows, 3), time.UTC, nil), nil)
	assert.Equal(t, 2, times.Count())
}

func TestSongplaysJoins(t *testing.T) {
	stages := stageLog{}

	songs := frame.FromRows([]star.Song{
		{SongID: str("S1"), Title: str("Soul Deep"), ArtistID: str("AR1")},
		{SongID: str("S2"), Title: str("Soul Deep"), ArtistID: str("AR2")},
		{SongID: str("S3"), Title: str("Other")},
		{SongID: str("S4")},
	}, 2)
	artists := frame.FromRows([]star.Artist{
		{ArtistID: str("AR1"), Name: str("The Box Tops")},
		{ArtistID: str("AR1"), Name: str("The Box Tops"), Location: str("Memphis, TN")},
		{ArtistID: str("AR9"), Name: str("Nobody")},
	}, 1)

	plays := Plays(frame.FromRows([]record.Activity{
		nextSong("26", "free", "Soul Deep", "The Box Tops", 1542242826796),
		nextSong("27", "free", "Missing", "The Box Tops", 1542242826796),
		{Page: str(record.PageNextSong), UserID: str("28"), Artist: str("The Box Tops"), TS: ts(1542242826796)},
	}, 2), time.UTC, nil)
	times := Times(plays, nil)

	facts := Songplays(plays, songs, artists, times, stages.observe).Rows()

	// two songs share the title and the artist has two rows: 2 x 2 matches
	require.Len(t, facts, 4)
	for _, f := range facts {
		assert.Equal(t, str("26"), f.UserID)
		assert.Equal(t, str("AR1"), f.ArtistID, "artist id comes from the artist row")
		assert.Equal(t, str("2018-11-15 00:47:06"), f.StartTime)
		assert.Equal(t, i64(2018), f.Year)
		assert.Equal(t, i64(11), f.Month)
	}
	songIDs := map[string]int{}
	for _, f := range facts {
		songIDs[f.SongID.V]++
	}
	assert.Equal(t, map[string]int{"S1": 2, "S2": 2}, songIDs)

	assert.Equal(t, [2]int{3, 2}, stages[StageJoinSongTitle])
	assert.Equal(t, [2]int{2, 4}, stages[StageJoinArtistName])
	assert.Equal(t, [2]int{4, 4}, stages[StageJoinStartTime])
}

func TestSongplaysUnmatchedTimeKeepsPlay(t *testing.T) {
	songs := frame.FromRows([]star.Song{{SongID: str("S1"), Title: str("a")}}, 1)
	artists := frame.FromRows([]star.Artist{{ArtistID: str("AR1"), Name: str("x")}}, 1)
	plays := Plays(frame.FromRows([]record.Activity{nextSong("1", "free", "a", "x", 1542242826796)}, 1), time.UTC, nil)
	noTimes := frame.FromRows([]star.Time{}, 1)

	facts := Songplays(plays, songs, artists, noTimes, nil).Rows()
	require.Len(t, facts, 1)
	assert.Equal(t, i64(2018), facts[0].Year, "year and month come from start_time itself")
}

func TestSongplaysYearMonthFromTimeRow(t *testing.T) {
	songs := frame.FromRows([]star.Song{{SongID: str("S1"), Title: str("a")}}, 1)
	artists := frame.FromRows([]star.Artist{{ArtistID: str("AR1"), Name: str("x")}}, 1)
	plays := Plays(frame.FromRows([]record.Activity{
		nextSong("1", "free", "a", "x", 1542242826796),
		nextSong("2", "free", "a", "x", 1543000000000),
	}, 2), time.UTC, nil)
	times := frame.FromRows([]star.Time{
		{StartTime: str("2018-11-15 00:47:06"), Year: i64(2017), Month: i64(4)},
	}, 1)

	facts := Songplays(plays, songs, artists, times, nil).Rows()
	require.Len(t, facts, 2)
	byUser := map[string]star.Songplay{}
	for _, f := range facts {
		byUser[f.UserID.V] = f
	}
	assert.Equal(t, i64(2017), byUser["1"].Year, "matched time row wins")
	assert.Equal(t, i64(4), byUser["1"].Month)
	assert.Equal(t, i64(2018), byUser["2"].Year, "unmatched play decomposes start_time")
	assert.Equal(t, i64(11), byUser["2"].Month)
}

func TestAssignSongplayIDs(t *testing.T) {
	rows := make([]star.Songplay, 5000)
	facts, err := AssignSongplayIDs(frame.FromRows(rows, 4))
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, f := range facts.Rows() {
		assert.NotZero(t, f.SongplayID)
		assert.False(t, seen[f.SongplayID], "duplicate id %d", f.SongplayID)
		seen[f.SongplayID] = true
	}
	assert.Len(t, seen, 5000)
}

func TestAssignSongplayIDsTooManyPartitions(t *testing.T) {
	rows := make([]star.Songplay, MaxPartitions+1)
	_, err := AssignSongplayIDs(frame.FromRows(rows, MaxPartitions+1))
	assert.Error(t, err)
}
