package repo

import (
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// An Entry is one bottle that a repository holds.
type Entry struct {
	Name     string `plist:"name"`
	PkgVer   string `plist:"pkgver"`
	SHA256   string `plist:"sha256"`
	Filename string `plist:"filename"`
}

// IndexService is a wrapper around a lot of functions that
// interrogate bottle repository indexes.  Indexes are grouped by
// platform tag and then by repository name.
type IndexService struct {
	l  hclog.Logger
	hc *http.Client

	mu       sync.RWMutex
	urls     map[string]map[string]string
	packages map[string]map[string]*Entry
}
