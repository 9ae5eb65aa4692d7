// Package record holds the raw input record types and the lenient
// coercion that maps decoded JSON onto them.
//
// A value whose JSON kind does not fit the declared column type becomes
// null. Nothing in this package returns an error for bad field values;
// only a line that is not a JSON object at all is rejected by ParseObject.
package record

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cast"
)

// ErrNotObject is returned by ParseObject for input that is not a JSON object
var ErrNotObject = errors.New("not a json object")

// Catalog is one song catalog record (one song and its artist).
type Catalog struct {
	ArtistID        sql.Null[string]
	ArtistLatitude  sql.Null[float64]
	ArtistLocation  sql.Null[string]
	ArtistLongitude sql.Null[float64]
	ArtistName      sql.Null[string]
	Duration        sql.Null[float64]
	NumSongs        sql.Null[int64]
	SongID          sql.Null[string]
	Title           sql.Null[string]
	Year            sql.Null[int64]
}

// Activity is one user-activity log event.
type Activity struct {
	Artist        sql.Null[string]
	Auth          sql.Null[string]
	FirstName     sql.Null[string]
	Gender        sql.Null[string]
	ItemInSession sql.Null[int64]
	LastName      sql.Null[string]
	Length        sql.Null[float64]
	Level         sql.Null[string]
	Location      sql.Null[string]
	Method        sql.Null[string]
	Page          sql.Null[string]
	Registration  sql.Null[float64]
	SessionID     sql.Null[int64]
	Song          sql.Null[string]
	Status        sql.Null[int64]
	TS            sql.Null[int64] // epoch milliseconds
	UserAgent     sql.Null[string]
	UserID        sql.Null[string]
}

// PageNextSong is the page value that marks a song play.
const PageNextSong = "NextSong"

// IsPlay reports whether the event is a song play.
func (a Activity) IsPlay() bool {
	return a.Page.Valid && a.Page.V == PageNextSong
}

// ParseObject decodes a single JSON object, keeping numbers as json.Number
// so integer columns do not lose precision.
func ParseObject(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrNotObject)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// DecodeCatalog maps a decoded object onto a Catalog record.
func DecodeCatalog(obj map[string]any) Catalog {
	return Catalog{
		ArtistID:        ToString(obj["artist_id"]),
		ArtistLatitude:  ToFloat64(obj["artist_latitude"]),
		ArtistLocation:  ToString(obj["artist_location"]),
		ArtistLongitude: ToFloat64(obj["artist_longitude"]),
		ArtistName:      ToString(obj["artist_name"]),
		Duration:        ToFloat64(obj["duration"]),
		NumSongs:        ToInt64(obj["num_songs"]),
		SongID:          ToString(obj["song_id"]),
		Title:           ToString(obj["title"]),
		Year:            ToInt64(obj["year"]),
	}
}

// DecodeActivity maps a decoded object onto an Activity record.
func DecodeActivity(obj map[string]any) Activity {
	return Activity{
		Artist:        ToString(obj["artist"]),
		Auth:          ToString(obj["auth"]),
		FirstName:     ToString(obj["firstName"]),
		Gender:        ToString(obj["gender"]),
		ItemInSession: ToInt64(obj["itemInSession"]),
		LastName:      ToString(obj["lastName"]),
		Length:        ToFloat64(obj["length"]),
		Level:         ToString(obj["level"]),
		Location:      ToString(obj["location"]),
		Method:        ToString(obj["method"]),
		Page:          ToString(obj["page"]),
		Registration:  ToFloat64(obj["registration"]),
		SessionID:     ToInt64(obj["sessionId"]),
		Song:          ToString(obj["song"]),
		Status:        ToInt64(obj["status"]),
		TS:            ToInt64(obj["ts"]),
		UserAgent:     ToString(obj["userAgent"]),
		UserID:        ToString(obj["userId"]),
	}
}

// ToString coerces a JSON scalar to a string column. Strings, numbers and
// booleans are accepted; null, objects and arrays give null.
func ToString(v any) sql.Null[string] {
	switch x := v.(type) {
	case string:
		return sql.Null[string]{V: x, Valid: true}
	case json.Number:
		return sql.Null[string]{V: x.String(), Valid: true}
	case bool, float64, int, int64:
		s, err := cast.ToStringE(x)
		if err != nil {
			return sql.Null[string]{}
		}
		return sql.Null[string]{V: s, Valid: true}
	default:
		return sql.Null[string]{}
	}
}

// ToInt64 coerces a JSON number to an integer column. Fractional numbers,
// strings and every other kind give null.
func ToInt64(v any) sql.Null[int64] {
	switch x := v.(type) {
	case json.Number:
		n, err := cast.ToInt64E(x.String())
		if err != nil {
			return sql.Null[int64]{}
		}
		return sql.Null[int64]{V: n, Valid: true}
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return sql.Null[int64]{}
		}
		return sql.Null[int64]{V: int64(x), Valid: true}
	case int, int32, int64:
		n, err := cast.ToInt64E(x)
		if err != nil {
			return sql.Null[int64]{}
		}
		return sql.Null[int64]{V: n, Valid: true}
	default:
		return sql.Null[int64]{}
	}
}

// ToFloat64 coerces a JSON number to a floating point column.
func ToFloat64(v any) sql.Null[float64] {
	switch x := v.(type) {
	case json.Number, float64, int, int32, int64:
		var in any = x
		if n, ok := x.(json.Number); ok {
			in = n.String()
		}
		f, err := cast.ToFloat64E(in)
		if err != nil || math.IsNaN(f) {
			return sql.Null[float64]{}
		}
		return sql.Null[float64]{V: f, Valid: true}
	default:
		return sql.Null[float64]{}
	}
}
