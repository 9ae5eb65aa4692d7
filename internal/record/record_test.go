package record

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"ts": 1542242826796, "page": "NextSong"}`))
	require.NoError(t, err)
	assert.Equal(t, "1542242826796", obj["ts"].(interface{ String() string }).String())

	for _, bad := range []string{`[1,2]`, `"x"`, `{"a":`, `{"a":1} {"b":2}`, `not json`} {
		_, err := ParseObject([]byte(bad))
		assert.Truef(t, errors.Is(err, ErrNotObject), "input %q: got %v", bad, err)
	}
}

func TestDecodeCatalog(t *testing.T) {
	obj, err := ParseObject([]byte(`{
		"num_songs": 1,
		"artist_id": "ARJIE2Y1187B994AB7",
		"artist_latitude": null,
		"artist_longitude": 35.5,
		"artist_location": "",
		"artist_name": "Line Renaud",
		"song_id": "SOUPIRU12A6D4FA1E1",
		"title": "Der Kleine Dompfaff",
		"duration": 152.92036,
		"year": 0
	}`))
	require.NoError(t, err)

	rec := DecodeCatalog(obj)
	assert.Equal(t, sql.Null[string]{V: "ARJIE2Y1187B994AB7", Valid: true}, rec.ArtistID)
	assert.False(t, rec.ArtistLatitude.Valid)
	assert.Equal(t, sql.Null[float64]{V: 35.5, Valid: true}, rec.ArtistLongitude)
	assert.Equal(t, sql.Null[string]{V: "", Valid: true}, rec.ArtistLocation, "empty string is not null")
	assert.Equal(t, sql.Null[int64]{V: 0, Valid: true}, rec.Year)
	assert.Equal(t, sql.Null[int64]{V: 1, Valid: true}, rec.NumSongs)
	assert.InDelta(t, 152.92036, rec.Duration.V, 1e-9)
}

func TestDecodeCatalogTypeMismatchBecomesNull(t *testing.T) {
	obj, err := ParseObject([]byte(`{
		"song_id": {"nested": true},
		"year": "1999",
		"duration": "long",
		"num_songs": 1.5,
		"title": 42
	}`))
	require.NoError(t, err)

	rec := DecodeCatalog(obj)
	assert.False(t, rec.SongID.Valid, "object for string column")
	assert.False(t, rec.Year.Valid, "string for int column")
	assert.False(t, rec.Duration.Valid, "string for float column")
	assert.False(t, rec.NumSongs.Valid, "fraction for int column")
	assert.Equal(t, sql.Null[string]{V: "42", Valid: true}, rec.Title, "numbers render as text in string columns")
	assert.False(t, rec.ArtistID.Valid, "missing key")
}

func TestDecodeActivity(t *testing.T) {
	obj, err := ParseObject([]byte(`{"artist":"Pavement","auth":"Logged In","firstName":"Sylvie","gender":"F","itemInSession":0,"lastName":"Cruz","length":99.16036,"level":"free","location":"Washington-Arlington-Alexandria, DC-VA-MD-WV","method":"PUT","page":"NextSong","registration":1.540266185796E12,"sessionId":345,"song":"Mercy:The Laundromat","status":200,"ts":1541990258796,"userAgent":"Mozilla/5.0","userId":"10"}`))
	require.NoError(t, err)

	rec := DecodeActivity(obj)
	assert.True(t, rec.IsPlay())
	assert.Equal(t, sql.Null[int64]{V: 1541990258796, Valid: true}, rec.TS)
	assert.Equal(t, sql.Null[int64]{V: 345, Valid: true}, rec.SessionID)
	assert.Equal(t, sql.Null[string]{V: "10", Valid: true}, rec.UserID)
	assert.True(t, rec.Registration.Valid)
	assert.InDelta(t, 1.540266185796e12, rec.Registration.V, 1)
	assert.Equal(t, "Mercy:The Laundromat", rec.Song.V)
}

func TestIsPlay(t *testing.T) {
	tests := []struct {
		page     sql.Null[string]
		expected bool
	}{
		{sql.Null[string]{V: "NextSong", Valid: true}, true},
		{sql.Null[string]{V: "Home", Valid: true}, false},
		{sql.Null[string]{V: "nextsong", Valid: true}, false},
		{sql.Null[string]{}, false},
	}

	for _, tt := range tests {
		if got := (Activity{Page: tt.page}).IsPlay(); got != tt.expected {
			t.Errorf("IsPlay(%+v) = %v, expected %v", tt.page, got, tt.expected)
		}
	}
}

func TestCoercionFromGoValues(t *testing.T) {
	assert.Equal(t, sql.Null[int64]{V: 7, Valid: true}, ToInt64(7))
	assert.Equal(t, sql.Null[int64]{V: 7, Valid: true}, ToInt64(7.0))
	assert.False(t, ToInt64(7.25).Valid)
	assert.False(t, ToInt64(true).Valid)
	assert.Equal(t, sql.Null[float64]{V: 3, Valid: true}, ToFloat64(3))
	assert.Equal(t, sql.Null[string]{V: "true", Valid: true}, ToString(true))
	assert.False(t, ToString(nil).Valid)
	assert.False(t, ToString([]any{"a"}).Valid)
}
