package lake

import (
	"github.com/spf13/afero"
	"github.com/xitongsys/parquet-go/source"
)

// parquetFile adapts an afero.File to the parquet-go source interface.
// The reader reopens the file by name to read column chunks in parallel,
// so Open with an empty name reopens the same path.
type parquetFile struct {
	afero.File
	fs afero.Fs
}

var _ source.ParquetFile = (*parquetFile)(nil)

func (f *parquetFile) Open(name string) (source.ParquetFile, error) {
	if name == "" {
		name = f.Name()
	}
	h, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &parquetFile{File: h, fs: f.fs}, nil
}

func (f *parquetFile) Create(name string) (source.ParquetFile, error) {
	if name == "" {
		name = f.Name()
	}
	h, err := f.fs.Create(name)
	if err != nil {
		return nil, err
	}
	return &parquetFile{File: h, fs: f.fs}, nil
}
