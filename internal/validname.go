package internal

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	// A valid name must start with a letter, digit or underscore.
	// It may contain any character after that except control and slash.
	pattern = `^[\pL\pN_][^\pC/]*$`
	// It may not end with a whitespace character, or be a reserved word.
	antiPattern = `(\pZ|^(u?byte|char|string|u?short|u?int|u?int64|uint64|float|double|enum|opaque|compound))$`
)

var (
	re     = regexp.MustCompile(pattern)
	antiRe = regexp.MustCompile(antiPattern)

	ErrInvalidName = errors.New("invalid name")
)

// IsValidNetCDFName returns true if name is a valid NetCDF name.
func IsValidNetCDFName(name string) bool {
	return re.MatchString(name) && !antiRe.MatchString(name)
}

// CheckName returns ErrInvalidName, annotated with the name, when name is
// not a valid NetCDF name.
func CheckName(name string) error {
	if IsValidNetCDFName(name) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidName, name)
}
