// Package airdrop runs one airdrop: snapshot the network graph, pick the
// eligible nodes, connect to them and fund the peers that have no channel.
package airdrop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"code.dogecoin.org/airdrop/internal/connector"
	"code.dogecoin.org/airdrop/internal/funder"
	"code.dogecoin.org/airdrop/internal/graph"
	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/internal/metric"
	"code.dogecoin.org/airdrop/internal/pool"
	"code.dogecoin.org/airdrop/internal/spec"
	"code.dogecoin.org/governor"
)

const (
	StageSnapshot = "snapshot"
	StageDone     = "done"
	StageFailed   = "failed"
)

const DefaultCallTimeout = 30 * time.Second

type Options struct {
	Connect           bool
	Fund              bool
	Workers           int
	MinActiveChannels int // defaults to graph.DefaultMinActiveChannels
	CallTimeout       time.Duration // bounds listnodes and listchannels
	Connector         connector.Config
	Funder            funder.Config
}

// Status is a point-in-time view of the run, served by the web API.
type Status struct {
	RunID     string `json:"run_id"`
	Stage     string `json:"stage"`
	Nodes     int    `json:"nodes"`
	Channels  int    `json:"channels"`
	Eligible  int    `json:"eligible"`
	Connected int    `json:"connected"`
	Funded    int    `json:"funded"`
	Error     string `json:"error,omitempty"`
}

// Job is a governor service that performs a single run, then calls done.
type Job struct {
	governor.ServiceCtx
	client  spec.NodeClient
	journal spec.Journal // optional
	opts    Options
	done    func()

	mu     sync.Mutex
	status Status
	err    error
}

func New(client spec.NodeClient, journal spec.Journal, opts Options, done func()) *Job {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.MinActiveChannels <= 0 {
		opts.MinActiveChannels = graph.DefaultMinActiveChannels
	}
	runID := uuid.NewString()
	return &Job{
		client:  client,
		journal: journal,
		opts:    opts,
		done:    done,
		status:  Status{RunID: runID, Stage: StageSnapshot},
	}
}

func (j *Job) RunID() string {
	return j.status.RunID // immutable
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err is the result of the run, once it has finished.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// goroutine
func (j *Job) Run() {
	err := j.Execute(j.Context)
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	if err != nil {
		log.Errorw("[airdrop] run failed", "run", j.RunID(), "err", err)
	}
	if j.done != nil {
		// governor.Shutdown waits for this service to return.
		go j.done()
	}
}

// Execute performs the run under ctx. Individual connect and fund attempts
// never fail the run; only a failed snapshot or listpeers call does.
func (j *Job) Execute(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			j.update(func(s *Status) { s.Stage = StageFailed; s.Error = err.Error() })
		}
	}()
	runID := j.RunID()
	log.Infow("[airdrop] starting run", "run", runID, "connect", j.opts.Connect, "fund", j.opts.Fund)

	nodes, channels, err := j.snapshot(ctx)
	if err != nil {
		return err
	}
	g := graph.Build(nodes, channels)
	numNodes, numChannels := g.Stats()
	eligible := graph.Eligible(g, j.opts.MinActiveChannels)
	metric.EligibleNodes.Set(float64(len(eligible)))
	log.Infof("[airdrop] %d of %d nodes with addresses are eligible (%d channels)", len(eligible), numNodes, numChannels)
	j.update(func(s *Status) {
		s.Nodes = numNodes
		s.Channels = numChannels
		s.Eligible = len(eligible)
	})

	workers := pool.New(ctx, j.opts.Workers)
	if j.journal != nil {
		workers.WithJournal(j.journal, runID)
	}
	// drain before the summary so late attempts are recorded.
	defer func() {
		workers.Close()
		j.logSummary()
	}()

	if j.opts.Connect {
		j.update(func(s *Status) { s.Stage = spec.StageConnect })
		connected := connector.New(j.client, workers, j.opts.Connector).ConnectAll(ctx, eligible)
		log.Infof("connected to %d of %d eligible nodes", connected, len(eligible))
		j.update(func(s *Status) { s.Connected = connected })
	}

	if j.opts.Fund {
		j.update(func(s *Status) { s.Stage = spec.StageFund })
		funded, err := funder.New(j.client, workers, j.opts.Funder).FundUnfunded(ctx)
		if err != nil {
			return err
		}
		log.Infof("funded %d peers", funded)
		j.update(func(s *Status) { s.Funded = funded })
	}

	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	j.update(func(s *Status) { s.Stage = StageDone })
	return nil
}

func (j *Job) snapshot(ctx context.Context) ([]spec.NetworkNode, []spec.Channel, error) {
	defer metric.MeasureDuration(metric.AttemptDuration, time.Now(), StageSnapshot)
	ctx, cancel := context.WithTimeout(ctx, j.opts.CallTimeout)
	defer cancel()
	channels, err := j.client.ListChannels(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listchannels: %w", err)
	}
	nodes, err := j.client.ListNodes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listnodes: %w", err)
	}
	log.Debugw("[airdrop] snapshot", "nodes", len(nodes), "channels", len(channels))
	return nodes, channels, nil
}

func (j *Job) logSummary() {
	if j.journal == nil {
		return
	}
	counts, err := j.journal.Summary(j.RunID())
	if err != nil {
		log.Warnw("[airdrop] cannot read journal summary", "err", err)
		return
	}
	for _, c := range counts {
		log.Infow("[airdrop] summary", "stage", c.Stage, "outcome", c.Outcome, "count", c.Count)
	}
}

func (j *Job) update(fn func(s *Status)) {
	j.mu.Lock()
	fn(&j.status)
	j.mu.Unlock()
}
