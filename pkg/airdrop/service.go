package airdrop

import (
	"context"

	"go.uber.org/multierr"

	"code.dogecoin.org/airdrop/internal/airdrop"
	"code.dogecoin.org/airdrop/internal/config"
	"code.dogecoin.org/airdrop/internal/lightning"
	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/internal/store"
	"code.dogecoin.org/airdrop/internal/web"
	"code.dogecoin.org/governor"
)

type AirdropConfig struct {
	Config  *config.Config
	Connect bool // connect to eligible nodes
	Fund    bool // fund channels to peers without one
}

// RunAirdropService performs one run and returns when it has finished
// or the process was interrupted.
func RunAirdropService(s AirdropConfig) (err error) {
	cfg := s.Config

	// open the attempt journal.
	db, err := store.NewSQLiteStore(cfg.Journal.Path, context.Background())
	if err != nil {
		log.Errorf("Error opening journal: %v [%s]", err, cfg.Journal.Path)
		return err
	}
	defer func() {
		err = multierr.Append(err, db.Close())
	}()

	client := lightning.New(cfg.Lightning.RPCPath)
	log.Infow("[airdrop] using lightning node", "rpc", client.Path())

	gov := governor.New().CatchSignals()

	// the run stops the governor when it is done.
	job := airdrop.New(client, db, airdrop.Options{
		Connect:           s.Connect,
		Fund:              s.Fund,
		Workers:           cfg.Pool.Workers,
		MinActiveChannels: cfg.Eligibility.MinActiveChannels,
		CallTimeout:       cfg.Lightning.CallTimeout.Duration,
		Connector:         cfg.ConnectorConfig(),
		Funder:            cfg.FunderConfig(),
	}, gov.Shutdown)
	gov.Add("airdrop", job)

	// start the web server.
	if cfg.Web.Bind != "" {
		gov.Add("web-api", web.New(cfg.Web.Bind, job, db))
	}

	// run services until the run is done or interrupted.
	gov.Start()
	gov.WaitForShutdown()

	return job.Err()
}
