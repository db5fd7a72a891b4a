package store

import (
	"errors"
	"io"
)

// First bytes of the formats NetCDF files come in.
const (
	kindCDF  = 'C'
	kindHDF5 = 0x89
)

var (
	ErrUnknownFormat = errors.New("not a CDF or HDF5 file")
	ErrHDF5          = errors.New("HDF5 (NetCDF-4) files are not supported")
)

// checkFormat peeks at the first byte of file and rewinds it.
func checkFormat(file io.ReadSeeker) error {
	var b [1]byte
	n, err := file.Read(b[:])
	if n == 0 {
		if err == nil || err == io.EOF {
			return ErrUnknownFormat
		}
		return err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	switch b[0] {
	case kindCDF:
		return nil
	case kindHDF5:
		return ErrHDF5
	}
	return ErrUnknownFormat
}
