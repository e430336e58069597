package source

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	git "github.com/go-git/go-git/v5"
	"github.com/hashicorp/go-hclog"
)

// A RepoMngr manages the git side of a tap checkout.
type RepoMngr struct {
	l    hclog.Logger
	Path string
	URL  string
	Mu   *sync.Mutex
	repo *git.Repository
}

// A Watcher reports changes to a tap that lives on local disk and is
// edited in place rather than moved with git.
type Watcher struct {
	l        hclog.Logger
	root     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	onChange func([]string)
}
