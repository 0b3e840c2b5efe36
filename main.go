package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/bsv-blockchain/richlist/daemon"
	"github.com/bsv-blockchain/richlist/errors"
	"github.com/bsv-blockchain/richlist/settings"
	"github.com/bsv-blockchain/richlist/stores/richlist"
	"github.com/bsv-blockchain/richlist/stores/richlist/factory"
	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/bsv-blockchain/richlist/util/health"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// Name used by build script for the binaries. (Please keep on single line)
const progname = "richlist"

// Version & commit strings injected at build with -ldflags -X...
var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
}

func main() {
	app := newApp()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var storeFlag = &cli.StringFlag{
	Name:  "store",
	Usage: "store URL, defaults to richlist_store",
}

func newApp() *cli.App {
	return &cli.App{
		Name:    progname,
		Usage:   "Ranks the addresses holding the largest balances on a node's best chain",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Run the indexer and its HTTP API",
				Action: start,
			},
			{
				Name:  "list",
				Usage: "Print the richest addresses held by a store",
				Flags: []cli.Flag{
					storeFlag,
					&cli.IntFlag{
						Name:  "n",
						Usage: "number of entries, defaults to richlist_listSize",
					},
				},
				Action: list,
			},
			{
				Name:   "bestblock",
				Usage:  "Print the last block applied to a store",
				Flags:  []cli.Flag{storeFlag},
				Action: bestBlock,
			},
			{
				Name:  "invalidate",
				Usage: "Roll back the latest blocks applied to a store",
				Flags: []cli.Flag{
					storeFlag,
					&cli.IntFlag{
						Name:  "count",
						Usage: "number of blocks to roll back",
						Value: 1,
					},
				},
				Action: invalidate,
			},
			{
				Name:  "health",
				Usage: "Query the health endpoint of a running daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "address",
						Usage: "base URL of the daemon, defaults to prometheusListenAddress",
					},
					&cli.BoolFlag{
						Name:  "liveness",
						Usage: "only check that the daemon is alive",
					},
				},
				Action: checkHealth,
			},
			{
				Name:   "settings",
				Usage:  "Print the effective settings",
				Action: printSettings,
			},
		},
	}
}

func newLogger(tSettings *settings.Settings) ulogger.Logger {
	return ulogger.New(progname, ulogger.WithLevel(tSettings.LogLevel), ulogger.WithPretty(tSettings.PrettyLogs))
}

func start(_ *cli.Context) error {
	tSettings := settings.NewSettings()
	logger := newLogger(tSettings)

	stats := gocore.Config().Stats()
	logger.Infof("STATS\n%s\nVERSION\n-------\n%s (%s)\n\n", stats, version, commit)

	d := daemon.New(daemon.WithLoggerFactory(func(serviceName string) ulogger.Logger {
		return logger.New(serviceName, ulogger.WithLevel(tSettings.LogLevel))
	}))

	return d.Start(logger, tSettings)
}

func openStore(c *cli.Context) (richlist.Store, func(), error) {
	tSettings := settings.NewSettings()
	logger := newLogger(tSettings)

	var storeURL *url.URL

	if raw := c.String(storeFlag.Name); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, nil, err
		}

		storeURL = u
	}

	store, err := factory.NewStore(c.Context, logger, tSettings, storeURL)
	if err != nil {
		return nil, nil, err
	}

	return store, func() { _ = store.Close(context.Background()) }, nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func list(c *cli.Context) error {
	store, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	n := c.Int("n")
	if n <= 0 {
		n = settings.NewSettings().RichList.ListSize
	}

	balances, err := store.GetMostRichest(c.Context, n)
	if err != nil {
		return err
	}

	return printJSON(balances)
}

func bestBlock(c *cli.Context) error {
	store, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	best, err := store.BestBlock(c.Context)
	if err != nil {
		return err
	}

	return printJSON(best)
}

func invalidate(c *cli.Context) error {
	store, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()

	for i := 0; i < c.Int("count"); i++ {
		best, err := store.InvalidateLatestBlock(c.Context)
		if err != nil {
			return err
		}

		fmt.Printf("rolled back to %s at height %d\n", best.Hash, best.Height)
	}

	return nil
}

func checkHealth(c *cli.Context) error {
	address := c.String("address")
	if address == "" {
		address = "http://" + settings.NewSettings().PrometheusListenAddress
	}

	path := "/health/readiness"
	if c.Bool("liveness") {
		path = "/health/liveness"
	}

	status, message, err := health.CheckHTTPServer(address, path)(c.Context, c.Bool("liveness"))
	fmt.Println(message)

	if err != nil {
		return err
	}

	if status != http.StatusOK {
		return errors.NewServiceUnavailableError("daemon at %s reports status %d", address, status)
	}

	return nil
}

func printSettings(_ *cli.Context) error {
	fmt.Println(settings.NewSettings())

	return nil
}
