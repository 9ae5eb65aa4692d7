package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/franz/playlake/internal/lake"
	"github.com/franz/playlake/internal/star"
	"github.com/franz/playlake/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/unicode/norm"
)

var showCmd = &cobra.Command{
	Use:   "show <table>",
	Short: "Show a written table",
	Long: `Display the manifest of a written table and a sample of its rows.

Tables: songs, artists, users, time, songplays.

Reads <output>/<table>; the table must have completed a write.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: star.TableNames,
	RunE:      runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().StringP("output", "o", "", "output root (default: output from config)")
	showCmd.Flags().IntP("limit", "n", 10, "number of sample rows (0 = none)")
	showCmd.Flags().Bool("partitions", false, "list every partition directory")
}

func runShow(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("output")
	if root == "" {
		root = viper.GetString("output")
	}
	if root == "" {
		return fmt.Errorf("%w: output root is required (use --output/-o or set in config)", util.ErrInvalidConfig)
	}
	limit, _ := cmd.Flags().GetInt("limit")
	listPartitions, _ := cmd.Flags().GetBool("partitions")

	s := lake.New(&lake.Config{Root: root, Workers: util.GetConcurrency()})
	m, err := s.ReadManifest(args[0])
	if err != nil {
		return err
	}

	w := os.Stdout
	fmt.Fprintf(w, "Table:      %s\n", m.Table)
	fmt.Fprintf(w, "Path:       %s\n", s.TablePath(m.Table))
	fmt.Fprintf(w, "Run:        %s\n", m.RunID)
	fmt.Fprintf(w, "Written:    %s (%s)\n", m.WrittenAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(m.WrittenAt))
	fmt.Fprintf(w, "Rows:       %s\n", humanize.Comma(m.Rows))
	fmt.Fprintf(w, "Files:      %d (%s)\n", m.Files, humanize.Bytes(uint64(m.Bytes)))
	if len(m.PartitionBy) > 0 {
		fmt.Fprintf(w, "Partitions: %d by %s\n", len(m.Partitions), strings.Join(m.PartitionBy, ", "))
	}
	if listPartitions {
		for _, p := range m.Partitions {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}

	if limit <= 0 {
		return nil
	}
	fmt.Fprintln(w)

	ctx := context.Background()
	width := util.TerminalWidth(os.Stdout)
	switch m.Table {
	case star.SongsTable:
		return showSample(ctx, w, s, star.Songs, limit, width, songColumns, songCells)
	case star.ArtistsTable:
		return showSample(ctx, w, s, star.Artists, limit, width, artistColumns, artistCells)
	case star.UsersTable:
		return showSample(ctx, w, s, star.Users, limit, width, userColumns, userCells)
	case star.TimeTable:
		return showSample(ctx, w, s, star.TimeDim, limit, width, timeColumns, timeCells)
	case star.SongplaysTable:
		return showSample(ctx, w, s, star.Songplays, limit, width, songplayColumns, songplayCells)
	default:
		return fmt.Errorf("%w: unknown table %q", util.ErrNotFound, m.Table)
	}
}

func showSample[T any, F any](ctx context.Context, w io.Writer, s *lake.Store, t lake.Table[T, F], limit, width int, columns []string, cells func(T) []string) error {
	f, err := lake.Read(ctx, s, t)
	if err != nil {
		return err
	}

	rows := f.Rows()
	if len(rows) > limit {
		rows = rows[:limit]
	}

	// keep each column narrow enough that a row fits the terminal
	maxCell := width/len(columns) - 2
	if maxCell < 8 {
		maxCell = 8
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		vals := cells(row)
		for i, v := range vals {
			vals[i] = truncate(v, maxCell)
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if n := f.Count(); n > len(rows) {
		fmt.Fprintf(w, "... %s more rows\n", humanize.Comma(int64(n-len(rows))))
	}
	return nil
}

// truncate composes s to NFC first so a base letter and its combining
// mark are not split across the cut.
func truncate(s string, max int) string {
	s = norm.NFC.String(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func cellString(v sql.Null[string]) string {
	if !v.Valid {
		return "null"
	}
	return v.V
}

func cellInt(v sql.Null[int64]) string {
	if !v.Valid {
		return "null"
	}
	return strconv.FormatInt(v.V, 10)
}

func cellFloat(v sql.Null[float64]) string {
	if !v.Valid {
		return "null"
	}
	return strconv.FormatFloat(v.V, 'f', -1, 64)
}

var songColumns = []string{"song_id", "title", "artist_id", "year", "duration"}

func songCells(r star.Song) []string {
	return []string{cellString(r.SongID), cellString(r.Title), cellString(r.ArtistID), cellInt(r.Year), cellFloat(r.Duration)}
}

var artistColumns = []string{"artist_id", "name", "location", "latitude", "longitude"}

func artistCells(r star.Artist) []string {
	return []string{cellString(r.ArtistID), cellString(r.Name), cellString(r.Location), cellFloat(r.Latitude), cellFloat(r.Longitude)}
}

var userColumns = []string{"user_id", "first_name", "last_name", "gender", "level"}

func userCells(r star.User) []string {
	return []string{cellString(r.UserID), cellString(r.FirstName), cellString(r.LastName), cellString(r.Gender), cellString(r.Level)}
}

var timeColumns = []string{"start_time", "hour", "day", "week", "month", "year", "weekday"}

func timeCells(r star.Time) []string {
	return []string{cellString(r.StartTime), cellInt(r.Hour), cellInt(r.Day), cellInt(r.Week), cellInt(r.Month), cellInt(r.Year), cellInt(r.Weekday)}
}

var songplayColumns = []string{"songplay_id", "start_time", "user_id", "level", "song_id", "artist_id", "session_id", "location", "user_agent", "year", "month"}

func songplayCells(r star.Songplay) []string {
	return []string{
		strconv.FormatInt(r.SongplayID, 10),
		cellString(r.StartTime),
		cellString(r.UserID),
		cellString(r.Level),
		cellString(r.SongID),
		cellString(r.ArtistID),
		cellInt(r.SessionID),
		cellString(r.Location),
		cellString(r.UserAgent),
		cellInt(r.Year),
		cellInt(r.Month),
	}
}
