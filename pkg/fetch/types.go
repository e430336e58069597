package fetch

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// A Fetcher downloads sources into a content addressed cache.
type Fetcher struct {
	l  hclog.Logger
	hc *http.Client

	// Cache is the directory downloads are kept in.
	Cache string

	// Jobs bounds how many downloads FetchAll runs at once.
	Jobs int

	// keys serializes work on a single cache entry.
	keysMu sync.Mutex
	keys   map[string]*sync.Mutex
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// ErrChecksumMismatch is returned when a download does not hash to
// the value the formula declares.
type ErrChecksumMismatch struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}
