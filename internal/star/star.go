// Package star defines the star schema: the songs, artists, users and time
// dimensions, the songplays fact table, and how each is laid out in the lake.
//
// Row types use sql.Null columns so that every row is a comparable value
// and exact-row dedup can key a map on the row itself.
package star

import "database/sql"

// Table names, also the directory names under the output root.
const (
	SongsTable     = "songs"
	ArtistsTable   = "artists"
	UsersTable     = "users"
	TimeTable      = "time"
	SongplaysTable = "songplays"
)

// TableNames lists every output table in write order.
var TableNames = []string{SongsTable, ArtistsTable, UsersTable, TimeTable, SongplaysTable}

// Song is a row of the songs dimension.
type Song struct {
	SongID   sql.Null[string]
	Title    sql.Null[string]
	ArtistID sql.Null[string]
	Year     sql.Null[int64]
	Duration sql.Null[float64]
}

// Artist is a row of the artists dimension.
type Artist struct {
	ArtistID  sql.Null[string]
	Name      sql.Null[string]
	Location  sql.Null[string]
	Latitude  sql.Null[float64]
	Longitude sql.Null[float64]
}

// User is a row of the users dimension.
type User struct {
	UserID    sql.Null[string]
	FirstName sql.Null[string]
	LastName  sql.Null[string]
	Gender    sql.Null[string]
	Level     sql.Null[string]
}

// Time is a row of the time dimension. StartTime is the formatted
// "2006-01-02 15:04:05" local timestamp; Weekday runs 1 (Sunday) to 7.
type Time struct {
	StartTime sql.Null[string]
	Hour      sql.Null[int64]
	Day       sql.Null[int64]
	Week      sql.Null[int64]
	Month     sql.Null[int64]
	Year      sql.Null[int64]
	Weekday   sql.Null[int64]
}

// Songplay is a row of the songplays fact table.
type Songplay struct {
	SongplayID int64
	StartTime  sql.Null[string]
	UserID     sql.Null[string]
	Level      sql.Null[string]
	SongID     sql.Null[string]
	ArtistID   sql.Null[string]
	SessionID  sql.Null[int64]
	Location   sql.Null[string]
	UserAgent  sql.Null[string]
	Year       sql.Null[int64]
	Month      sql.Null[int64]
}
