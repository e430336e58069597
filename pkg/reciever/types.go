package reciever

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/repo"
)

// Reciever takes bottles via HTTP and incorporates them into a
// bottle repository laid out as <path>/<tag>/<repo>/.
type Reciever struct {
	l         hclog.Logger
	path      string
	repoMutex *sync.Mutex

	notify func(tag string, e *repo.Entry)
}
