//go:build !sqlite
// +build !sqlite

package store

import "errors"

func openSQLite(path string) (backend, error) {
	return nil, errors.New("sqlite driver not compiled in (build with -tags sqlite)")
}
