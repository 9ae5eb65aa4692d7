package star

import (
	"database/sql"

	"github.com/franz/playlake/internal/lake"
)

// Nullable columns are pointers in the parquet records: nil is null.

func ptr[V any](v sql.Null[V]) *V {
	if !v.Valid {
		return nil
	}
	x := v.V
	return &x
}

func null[V any](p *V) sql.Null[V] {
	if p == nil {
		return sql.Null[V]{}
	}
	return sql.Null[V]{V: *p, Valid: true}
}

type songRecord struct {
	SongID   *string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Title    *string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Duration *float64 `parquet:"name=duration, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// Songs is partitioned by year, then artist_id.
var Songs = lake.Table[Song, songRecord]{
	Name:        SongsTable,
	PartitionBy: []string{"year", "artist_id"},
	Partition: func(s Song) []lake.PartitionValue {
		return []lake.PartitionValue{lake.IntPartition(s.Year), lake.StringPartition(s.ArtistID)}
	},
	Encode: func(s Song) songRecord {
		return songRecord{SongID: ptr(s.SongID), Title: ptr(s.Title), Duration: ptr(s.Duration)}
	},
	Decode: func(r songRecord, p lake.Partition) Song {
		return Song{
			SongID:   null(r.SongID),
			Title:    null(r.Title),
			ArtistID: p.String("artist_id"),
			Year:     p.Int("year"),
			Duration: null(r.Duration),
		}
	},
}

type artistRecord struct {
	ArtistID  *string  `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Name      *string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Location  *string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// Artists is unpartitioned.
var Artists = lake.Table[Artist, artistRecord]{
	Name: ArtistsTable,
	Encode: func(a Artist) artistRecord {
		return artistRecord{
			ArtistID:  ptr(a.ArtistID),
			Name:      ptr(a.Name),
			Location:  ptr(a.Location),
			Latitude:  ptr(a.Latitude),
			Longitude: ptr(a.Longitude),
		}
	},
	Decode: func(r artistRecord, _ lake.Partition) Artist {
		return Artist{
			ArtistID:  null(r.ArtistID),
			Name:      null(r.Name),
			Location:  null(r.Location),
			Latitude:  null(r.Latitude),
			Longitude: null(r.Longitude),
		}
	},
}

type userRecord struct {
	UserID    *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	FirstName *string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	LastName  *string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Gender    *string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level     *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// Users is unpartitioned.
var Users = lake.Table[User, userRecord]{
	Name: UsersTable,
	Encode: func(u User) userRecord {
		return userRecord{
			UserID:    ptr(u.UserID),
			FirstName: ptr(u.FirstName),
			LastName:  ptr(u.LastName),
			Gender:    ptr(u.Gender),
			Level:     ptr(u.Level),
		}
	},
	Decode: func(r userRecord, _ lake.Partition) User {
		return User{
			UserID:    null(r.UserID),
			FirstName: null(r.FirstName),
			LastName:  null(r.LastName),
			Gender:    null(r.Gender),
			Level:     null(r.Level),
		}
	},
}

type timeRecord struct {
	StartTime *string `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Hour      *int64  `parquet:"name=hour, type=INT64, repetitiontype=OPTIONAL"`
	Day       *int64  `parquet:"name=day, type=INT64, repetitiontype=OPTIONAL"`
	Week      *int64  `parquet:"name=week, type=INT64, repetitiontype=OPTIONAL"`
	Weekday   *int64  `parquet:"name=weekday, type=INT64, repetitiontype=OPTIONAL"`
}

// TimeDim is partitioned by year, then month.
var TimeDim = lake.Table[Time, timeRecord]{
	Name:        TimeTable,
	PartitionBy: []string{"year", "month"},
	Partition: func(t Time) []lake.PartitionValue {
		return []lake.PartitionValue{lake.IntPartition(t.Year), lake.IntPartition(t.Month)}
	},
	Encode: func(t Time) timeRecord {
		return timeRecord{
			StartTime: ptr(t.StartTime),
			Hour:      ptr(t.Hour),
			Day:       ptr(t.Day),
			Week:      ptr(t.Week),
			Weekday:   ptr(t.Weekday),
		}
	},
	Decode: func(r timeRecord, p lake.Partition) Time {
		return Time{
			StartTime: null(r.StartTime),
			Hour:      null(r.Hour),
			Day:       null(r.Day),
			Week:      null(r.Week),
			Month:     p.Int("month"),
			Year:      p.Int("year"),
			Weekday:   null(r.Weekday),
		}
	},
}

type songplayRecord struct {
	SongplayID int64   `parquet:"name=songplay_id, type=INT64"`
	StartTime  *string `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	UserID     *string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level      *string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SongID     *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID   *string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID  *int64  `parquet:"name=session_id, type=INT64, repetitiontype=OPTIONAL"`
	Location   *string `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	UserAgent  *string `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// Songplays is partitioned by year, then month.
var Songplays = lake.Table[Songplay, songplayRecord]{
	Name:        SongplaysTable,
	PartitionBy: []string{"year", "month"},
	Partition: func(s Songplay) []lake.PartitionValue {
		return []lake.PartitionValue{lake.IntPartition(s.Year), lake.IntPartition(s.Month)}
	},
	Encode: func(s Songplay) songplayRecord {
		return songplayRecord{
			SongplayID: s.SongplayID,
			StartTime:  ptr(s.StartTime),
			UserID:     ptr(s.UserID),
			Level:      ptr(s.Level),
			SongID:     ptr(s.SongID),
			ArtistID:   ptr(s.ArtistID),
			SessionID:  ptr(s.SessionID),
			Location:   ptr(s.Location),
			UserAgent:  ptr(s.UserAgent),
		}
	},
	Decode: func(r songplayRecord, p lake.Partition) Songplay {
		return Songplay{
			SongplayID: r.SongplayID,
			StartTime:  null(r.StartTime),
			UserID:     null(r.UserID),
			Level:      null(r.Level),
			SongID:     null(r.SongID),
			ArtistID:   null(r.ArtistID),
			SessionID:  null(r.SessionID),
			Location:   null(r.Location),
			UserAgent:  null(r.UserAgent),
			Year:       p.Int("year"),
			Month:      p.Int("month"),
		}
	},
}
