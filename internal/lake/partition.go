package lake

import (
	"database/sql"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// DefaultPartition is the directory value used for a null partition column.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// PartitionValue is the string form of one partition column of one row.
type PartitionValue = sql.Null[string]

// Partition maps partition column names to their values for one directory.
type Partition map[string]PartitionValue

// StringPartition turns a nullable string column into a partition value.
func StringPartition(v sql.Null[string]) PartitionValue {
	return v
}

// IntPartition turns a nullable integer column into a partition value.
func IntPartition(v sql.Null[int64]) PartitionValue {
	if !v.Valid {
		return PartitionValue{}
	}
	return PartitionValue{V: strconv.FormatInt(v.V, 10), Valid: true}
}

// String returns the partition value for column as a nullable string.
func (p Partition) String(column string) sql.Null[string] {
	return p[column]
}

// Int returns the partition value for column parsed as an integer.
// A value that does not parse is null.
func (p Partition) Int(column string) sql.Null[int64] {
	v := p[column]
	if !v.Valid {
		return sql.Null[int64]{}
	}
	n, err := strconv.ParseInt(v.V, 10, 64)
	if err != nil {
		return sql.Null[int64]{}
	}
	return sql.Null[int64]{V: n, Valid: true}
}

// partitionDir renders "k1=v1/k2=v2" for the given columns and values.
// Values are path-escaped byte for byte so they read back unchanged.
func partitionDir(columns []string, values []PartitionValue) string {
	segments := make([]string, len(columns))
	for i, col := range columns {
		v := DefaultPartition
		if values[i].Valid && values[i].V != "" {
			v = url.PathEscape(values[i].V)
		}
		segments[i] = col + "=" + v
	}
	return path.Join(segments...)
}

// parsePartitionDir is the inverse of partitionDir.
func parsePartitionDir(columns []string, dir string) (Partition, error) {
	p := make(Partition, len(columns))
	if len(columns) == 0 {
		if dir != "" && dir != "." {
			return nil, fmt.Errorf("unexpected partition directory %q", dir)
		}
		return p, nil
	}

	segments := strings.Split(dir, "/")
	if len(segments) != len(columns) {
		return nil, fmt.Errorf("partition directory %q: expected %d levels", dir, len(columns))
	}
	for i, seg := range segments {
		key, raw, ok := strings.Cut(seg, "=")
		if !ok || key != columns[i] {
			return nil, fmt.Errorf("partition directory %q: expected column %q", dir, columns[i])
		}
		if raw == DefaultPartition {
			p[key] = PartitionValue{}
			continue
		}
		v, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("partition directory %q: %w", dir, err)
		}
		p[key] = PartitionValue{V: v, Valid: true}
	}
	return p, nil
}
