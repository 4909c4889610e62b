package app

import (
	"context"
	"time"

	"github.com/artpar/mongopenter/adapters/clock"
	"github.com/artpar/mongopenter/adapters/idgen"
	"github.com/artpar/mongopenter/adapters/metrics"
	"github.com/artpar/mongopenter/config"
	"github.com/artpar/mongopenter/core/extension"
	"github.com/artpar/mongopenter/domain/spec"
	"github.com/artpar/mongopenter/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Task names, in setup order.
const (
	TaskCreateShards      = "createShards"
	TaskCreateDatabases   = "createDatabases"
	TaskCreateCollections = "createCollections"
	TaskCreateDocuments   = "createDocuments"
	TaskAddShards         = "addShards"
)

// setupTasks is the fixed setup pipeline.
var setupTasks = []string{
	TaskCreateShards,
	TaskCreateDatabases,
	TaskCreateCollections,
	TaskCreateDocuments,
	TaskAddShards,
}

// Report is the result of one run.
type Report struct {
	RunID string
	Entry string
	Tasks []TaskReport
	// GrantErrors holds user grant failures. They are logged and reported
	// but do not fail the run.
	GrantErrors []error
	// Connected is false when the run had nothing to do.
	Connected bool
}

// TaskReport summarizes one executed task.
type TaskReport struct {
	Name     string
	Created  int
	Skipped  int
	Duration time.Duration
}

// Task returns the report of the named task, if it ran.
func (r Report) Task(name string) (TaskReport, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskReport{}, false
}

// Options configures a Provisioner.
type Options struct {
	// Store dials connections. Required.
	Store ports.Store
	// Setup is the loaded configuration; nil means none was loaded.
	Setup *config.Setup
	// URL is the normalized target connection string.
	URL string
	// Extensions holds hooks and document sources. Optional.
	Extensions *extension.Registry
	// Metrics collects run metrics. Optional.
	Metrics *metrics.Collector
	// Clock measures durations. Optional.
	Clock ports.Clock
	// IDs generates run IDs. Optional.
	IDs    ports.IDGenerator
	Logger zerolog.Logger
}

// Provisioner brings a deployment up to the state described by a setup.
// Runs are strictly sequential; a Provisioner must not be used from more
// than one goroutine at a time.
type Provisioner struct {
	store      ports.Store
	setup      *config.Setup
	url        string
	extensions *extension.Registry
	plan       spec.Plan
	metrics    *metrics.Collector
	clock      ports.Clock
	ids        ports.IDGenerator
	logger     zerolog.Logger
}

// NewProvisioner resolves and normalizes the setup into a plan. Extensions
// must be loaded before this call so their document sources are visible.
func NewProvisioner(opts Options) (*Provisioner, error) {
	p := &Provisioner{
		store:      opts.Store,
		setup:      opts.Setup,
		url:        opts.URL,
		extensions: opts.Extensions,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		ids:        opts.IDs,
		logger:     opts.Logger,
	}
	if p.extensions == nil {
		p.extensions = extension.NewRegistry()
	}
	if p.metrics == nil {
		p.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.ids == nil {
		p.ids = idgen.UUID{}
	}

	if p.setup != nil {
		plan, err := Normalize(p.setup, NewResolver(p.setup, p.extensions))
		if err != nil {
			return nil, err
		}
		p.plan = plan
	}
	return p, nil
}

// Plan returns the normalized plan.
func (p *Provisioner) Plan() spec.Plan {
	return p.plan
}

// Setup runs the full pipeline: createShards, createDatabases,
// createCollections, createDocuments, addShards, then notifies
// setupComplete hooks.
func (p *Provisioner) Setup(ctx context.Context) (Report, error) {
	report, err := p.run(ctx, "setup", setupTasks)
	if err != nil {
		return report, err
	}
	return report, p.notify(ctx, extension.EventSetupComplete, &report)
}

// CreateDatabases runs only the createDatabases task.
func (p *Provisioner) CreateDatabases(ctx context.Context) (Report, error) {
	return p.run(ctx, TaskCreateDatabases, []string{TaskCreateDatabases})
}

// CreateCollections runs only the createCollections task.
func (p *Provisioner) CreateCollections(ctx context.Context) (Report, error) {
	return p.run(ctx, TaskCreateCollections, []string{TaskCreateCollections})
}

// CreateDocuments runs only the createDocuments task.
func (p *Provisioner) CreateDocuments(ctx context.Context) (Report, error) {
	return p.run(ctx, TaskCreateDocuments, []string{TaskCreateDocuments})
}
