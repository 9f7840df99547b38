// Package utils holds small helpers shared across fluoresce's packages.
package utils

import (
	"io"
	"strings"
)

// SafeTruncate truncates str to at most limit bytes.
func SafeTruncate(str string, limit int) string {
	if len(str) > limit {
		return str[0:limit]
	}
	return str
}

type multiErr []error

func (m multiErr) Error() string {
	strs := make([]string, len(m))
	for i, err := range m {
		strs[i] = err.Error()
	}
	return strings.Join(strs, ", ")
}

// CloseMany closes every closer, continuing past individual failures, and
// returns a combined error if any Close call failed.
func CloseMany(closers []io.Closer) error {
	errs := make([]error, 0, len(closers))
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return multiErr(errs)
	}
	return nil
}
