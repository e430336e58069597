// Package nomad dispatches builds as parameterized Nomad jobs.
package nomad

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad/api"

	"github.com/the-maldridge/nbrew/pkg/scheduler"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// JobName is the parameterized job that builds one formula.
const JobName = "nbrew-build"

// jobsAPI is the part of the Nomad client this provider uses.
type jobsAPI interface {
	Dispatch(jobID string, meta map[string]string, payload []byte, q *api.WriteOptions) (*api.JobDispatchResponse, *api.WriteMeta, error)
	List(q *api.QueryOptions) ([]*api.JobListStub, *api.QueryMeta, error)
	Info(jobID string, q *api.QueryOptions) (*api.Job, *api.QueryMeta, error)
}

type nomadProvider struct {
	l    hclog.Logger
	jobs jobsAPI

	callback string
	slots    map[string]int
}

func init() {
	scheduler.RegisterInitCallback(cb)
}

func cb() {
	scheduler.RegisterCapacityFactory("nomad", New)
}

// New returns a wrapper around a nomad client that implements the
// scheduler's CapacityProvider interface.  The client is configured
// from the standard NOMAD_* environment.
func New(l hclog.Logger) (scheduler.CapacityProvider, error) {
	c, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return newProvider(l, c.Jobs()), nil
}

func newProvider(l hclog.Logger, j jobsAPI) *nomadProvider {
	cb := os.Getenv("NBREW_SCHEDULER_URL")
	if cb == "" {
		cb = "http://localhost:8080/api/scheduler"
	}
	return &nomadProvider{
		l:        l.Named("nomad"),
		jobs:     j,
		callback: strings.TrimSuffix(cb, "/"),
		slots:    make(map[string]int),
	}
}

func (n *nomadProvider) DispatchBuild(b scheduler.Build) error {
	r, err := n.runningBuilds()
	if err != nil {
		return err
	}
	if r[b.Platform]+1 > n.slots[b.Platform.Tag()] {
		return new(scheduler.ErrNoCapacity)
	}

	res, _, err := n.jobs.Dispatch(JobName, n.mergeCallbacks(b.ToMap()), nil, nil)
	if err != nil {
		n.l.Warn("Nomad error", "error", err)
		return err
	}
	n.l.Debug("Dispatched job", "platform", b.Platform, "formula", b.Pkg, "eval", res.EvalID, "jid", res.DispatchedJobID)
	return nil
}

func (n *nomadProvider) ListBuilds() ([]scheduler.Build, error) {
	qopts := &api.QueryOptions{
		Prefix: JobName + "/dispatch-",
	}
	jobs, _, err := n.jobs.List(qopts)
	if err != nil {
		return nil, err
	}
	builds := []scheduler.Build{}
	for _, stub := range jobs {
		if stub.Type != "batch" || (stub.Status != "running" && stub.Status != "pending") {
			continue
		}
		job, _, err := n.jobs.Info(stub.ID, nil)
		if err != nil {
			n.l.Trace("Unable to inspect job", "job", stub.ID, "error", err)
			continue
		}
		b := scheduler.BuildFromMap(job.Meta)
		n.l.Trace("Found running Build", "build", b)
		builds = append(builds, b)
	}
	return builds, nil
}

func (n *nomadProvider) SetSlots(s map[string]int) {
	n.slots = s
}

func (n *nomadProvider) runningBuilds() (map[types.Platform]int, error) {
	cap := make(map[types.Platform]int)

	builds, err := n.ListBuilds()
	if err != nil {
		return nil, new(scheduler.ErrNoCapacity)
	}

	for _, b := range builds {
		cap[b.Platform]++
	}
	return cap, nil
}

func (n *nomadProvider) mergeCallbacks(m map[string]string) map[string]string {
	m["callback_done"] = n.callback + "/done"
	return m
}
