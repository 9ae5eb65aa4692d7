package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/playlake/internal/util"
)

const songA = `{"num_songs": 1, "artist_id": "ARD7TVE1187B99BFB1", "artist_latitude": null, "artist_longitude": null, "artist_location": "California - LA", "artist_name": "Casual", "song_id": "SOMZWCG12A8C13C480", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}`
const songB = `{"num_songs": 1, "artist_id": "ARMJAGH1187FB546F3", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "The Box Tops", "song_id": "SOCIWDW12A8C13D406", "title": "Soul Deep", "duration": 148.03546, "year": 1969}`

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in/song_data/A/B/C/b.json", songB)
	writeFile(t, fs, "/in/song_data/A/A/A/a.json", songA)
	writeFile(t, fs, "/in/song_data/A/A/A/notes.txt", "x")
	require.NoError(t, fs.MkdirAll("/in/song_data/A/A/A/dir.json", 0755))

	files, err := Discover(fs, "/in", DefaultSongPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/song_data/A/A/A/a.json", "/in/song_data/A/B/C/b.json"}, files)

	_, err = Discover(fs, "/in", DefaultLogPattern)
	assert.True(t, errors.Is(err, util.ErrNoInput), "got %v", err)
}

func TestDiscoverDateNestedLogs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in/log_data/2018/11/2018-11-15-events.json", `{"page":"NextSong"}`)
	writeFile(t, fs, "/in/log_data/2018/11/2018-11-01-events.json", `{"page":"Home"}`)
	writeFile(t, fs, "/in/log_data/2018-11-30-events.json", `{"page":"NextSong"}`)

	files, err := Discover(fs, "/in", DefaultLogPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/in/log_data/2018/11/2018-11-01-events.json",
		"/in/log_data/2018/11/2018-11-15-events.json",
	}, files)
}

func TestLoadCatalog(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in/a.json", songA+"\n")
	writeFile(t, fs, "/in/b.json", songB)

	l := New(&Config{Fs: fs, Concurrency: 2, Partitions: 4})
	f, res, err := l.LoadCatalog(context.Background(), []string{"/in/a.json", "/in/b.json"})
	require.NoError(t, err)

	// one partition per file when there are fewer files than partitions
	assert.Equal(t, 2, f.NumPartitions())
	assert.Equal(t, 2, res.Records)
	assert.Zero(t, res.Malformed)

	parts := f.Partitions()
	assert.Equal(t, "SOMZWCG12A8C13C480", parts[0][0].SongID.V)
	assert.Equal(t, "SOCIWDW12A8C13D406", parts[1][0].SongID.V)
	assert.Equal(t, int64(1969), parts[1][0].Year.V)

	require.Len(t, res.Files, 2)
	assert.Equal(t, "/in/a.json", res.Files[0].Path)
	assert.Equal(t, SongData, res.Files[0].Dataset)
	assert.Equal(t, int64(len(songA)+1), res.Files[0].Bytes)
}

func TestLoadActivityDropsMalformedLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	lines := []string{
		`{"page":"NextSong","ts":1542242826796,"userId":"26","song":"Soul Deep"}`,
		``,
		`{"page":"Home","ts":1542242826797,"userId":"26"`,
		`   `,
		`[1,2,3]`,
		`{"page":"Home","ts":1542242826798,"userId":""}`,
	}
	writeFile(t, fs, "/in/log_data/2018-11-15-events.json", strings.Join(lines, "\n"))

	l := New(&Config{Fs: fs, Concurrency: 1})
	f, res, err := l.LoadActivity(context.Background(), []string{"/in/log_data/2018-11-15-events.json"})
	require.NoError(t, err)

	assert.Equal(t, 2, f.Count())
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.Malformed, "truncated object and array line are dropped, blank lines are not counted")

	rows := f.Rows()
	assert.True(t, rows[0].IsPlay())
	assert.Equal(t, int64(1542242826796), rows[0].TS.V)
	assert.False(t, rows[1].IsPlay())
}

func TestLoadRoundRobinPartitions(t *testing.T) {
	fs := afero.NewMemMapFs()
	paths := []string{"/in/0.json", "/in/1.json", "/in/2.json", "/in/3.json", "/in/4.json"}
	for i, p := range paths {
		writeFile(t, fs, p, strings.Repeat(songA+"\n", i+1))
	}

	l := New(&Config{Fs: fs, Concurrency: 3, Partitions: 2})
	f, res, err := l.LoadCatalog(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 15, res.Records)
	parts := f.Partitions()
	require.Len(t, parts, 2)
	// files 0, 2, 4 and files 1, 3
	assert.Len(t, parts[0], 1+3+5)
	assert.Len(t, parts[1], 2+4)
}

func TestLoadErrors(t *testing.T) {
	l := New(&Config{Fs: afero.NewMemMapFs()})

	_, _, err := l.LoadCatalog(context.Background(), nil)
	assert.True(t, errors.Is(err, util.ErrNoInput), "got %v", err)

	_, _, err = l.LoadCatalog(context.Background(), []string{"/missing.json"})
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://udacity-dend", "udacity-dend", "", true},
		{"s3://udacity-dend/", "udacity-dend", "", true},
		{"s3a://udacity-dend/raw/data", "udacity-dend", "raw/data/", true},
		{"s3:///nobucket", "", "", false},
		{"/local/path", "", "", false},
	}

	for _, tt := range tests {
		bucket, prefix, err := ParseS3URI(tt.uri)
		if !tt.ok {
			assert.Truef(t, errors.Is(err, util.ErrInvalidConfig), "%s: got %v", tt.uri, err)
			continue
		}
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.bucket, bucket, tt.uri)
		assert.Equal(t, tt.prefix, prefix, tt.uri)
	}

	assert.True(t, IsS3URI("s3://b/p"))
	assert.False(t, IsS3URI("/data"))
}

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]string
	pageSize  int
	failFirst map[string]bool
	gets      map[string]int
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+f.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)

	f.mu.Lock()
	f.gets[key]++
	attempt := f.gets[key]
	f.mu.Unlock()

	if f.failFirst[key] && attempt == 1 {
		return nil, errors.New("SlowDown: please reduce your request rate")
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func TestS3StagerStage(t *testing.T) {
	client := &fakeS3{
		objects: map[string]string{
			"raw/song_data/A/A/A/a.json":                  songA,
			"raw/song_data/A/B/C/b.json":                  songB,
			"raw/song_data/README":                        "ignore me",
			"raw/log_data/2018/11/2018-11-15-events.json": `{"page":"NextSong"}`,
			"raw/log_data/2018-11-16-events.json":         `{"page":"NextSong"}`,
			"other/log_data/2018/11/x.json":               "{}",
		},
		pageSize:  2,
		failFirst: map[string]bool{"raw/song_data/A/B/C/b.json": true},
		gets:      map[string]int{},
	}
	fs := afero.NewMemMapFs()

	stager := NewS3Stager(&StagerConfig{
		Client:      client,
		Fs:          fs,
		StagingDir:  "/staging",
		Concurrency: 2,
		Retry:       &util.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})

	root, n, err := stager.Stage(context.Background(), "s3://bucket/raw", DefaultSongPattern, DefaultLogPattern)
	require.NoError(t, err)
	assert.Equal(t, "/staging", root)
	assert.Equal(t, 3, n, "flat log file does not match the date-nested pattern")

	content, err := afero.ReadFile(fs, "/staging/song_data/A/B/C/b.json")
	require.NoError(t, err)
	assert.Equal(t, songB, string(content))
	assert.Equal(t, 2, client.gets["raw/song_data/A/B/C/b.json"], "throttled download is retried")

	exists, err := afero.Exists(fs, "/staging/song_data/README")
	require.NoError(t, err)
	assert.False(t, exists)

	// staged files are discoverable like a local root
	files, err := Discover(fs, root, DefaultSongPattern)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestS3StagerSkipsKeysOutsideStaging(t *testing.T) {
	client := &fakeS3{
		objects: map[string]string{
			"raw/song_data/A/A/A/a.json":       songA,
			"raw/song_data/../../../evil.json": "{}",
		},
		pageSize: 10,
		gets:     map[string]int{},
	}
	fs := afero.NewMemMapFs()

	stager := NewS3Stager(&StagerConfig{Client: client, Fs: fs, StagingDir: "/srv/staging"})

	_, n, err := stager.Stage(context.Background(), "s3://bucket/raw", DefaultSongPattern)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, client.gets["raw/song_data/../../../evil.json"], "escaping key is never fetched")

	for _, p := range []string{"/evil.json", "/srv/evil.json"} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, "%s written outside staging", p)
	}
}

func TestS3StagerNoMatches(t *testing.T) {
	stager := NewS3Stager(&StagerConfig{
		Client:     &fakeS3{objects: map[string]string{"a/b.txt": "x"}, pageSize: 10, gets: map[string]int{}},
		Fs:         afero.NewMemMapFs(),
		StagingDir: "/staging",
	})

	_, _, err := stager.Stage(context.Background(), "s3://bucket/a", DefaultLogPattern)
	assert.True(t, errors.Is(err, util.ErrNoInput), "got %v", err)
}
