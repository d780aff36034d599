package main

import (
	"fmt"
	"os"

	"github.com/hermeznetwork/tracerr"
	"github.com/urfave/cli"

	"code.dogecoin.org/airdrop/internal/config"
	"code.dogecoin.org/airdrop/internal/log"
	"code.dogecoin.org/airdrop/pkg/airdrop"
)

const (
	flagConnect = "connect"
	flagFund    = "fund"

	// optional TOML configuration file
	envConfig = "AIRDROP_CONFIG"
)

func cmdRun(c *cli.Context) error {
	cfg, err := config.Load(os.Getenv(envConfig))
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("error loading config: %w", err))
	}
	log.Init(cfg.Log.Level, cfg.Log.Out)
	return airdrop.RunAirdropService(airdrop.AirdropConfig{
		Config:  cfg,
		Connect: c.Bool(flagConnect),
		Fund:    c.Bool(flagFund),
	})
}

func main() {
	app := cli.NewApp()
	app.Name = "airdrop"
	app.Usage = "connect to well-connected lightning nodes and fund channels to new peers"
	app.Version = "v1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  flagConnect,
			Usage: "connect to every eligible node",
		},
		cli.BoolFlag{
			Name:  flagFund,
			Usage: "open a channel to every connected peer without one",
		},
	}
	app.Action = cmdRun

	err := app.Run(os.Args)
	if err != nil {
		fmt.Printf("\nError: %v\n", err)
		os.Exit(1)
	}
}
