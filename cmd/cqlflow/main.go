package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"

	"github.com/grafana/cqlflow/pkg/cfg"
	"github.com/grafana/cqlflow/pkg/cqlflow"
	util_log "github.com/grafana/cqlflow/pkg/util/log"
)

type globalFlags struct {
	configFile *string
	expandEnv  *bool
}

// load reads the config file over the flag defaults and validates it.
func (g *globalFlags) load() (cqlflow.Config, error) {
	var c cqlflow.Config
	err := cfg.Load(&c, *g.configFile, *g.expandEnv)
	return c, err
}

func main() {
	app := kingpin.New("cqlflow", "Runs CQL queries and polling triggers against Cassandra, ScyllaDB and Astra DB.")
	app.Version(version.Print("cqlflow"))
	app.HelpFlag.Short('h')

	g := &globalFlags{
		configFile: app.Flag("config.file", "Configuration file to load.").Required().String(),
		expandEnv:  app.Flag("config.expand-env", "Expands ${var} or $var in config according to the values of the environment variables.").Bool(),
	}

	runCmd := &runCommand{global: g}
	app.Command("run", "Start every configured trigger and serve metrics until interrupted.").Action(runCmd.run)

	queryCmd := &queryCommand{global: g}
	qc := app.Command("query", "Run a configured query once and print its output as JSON.").Action(queryCmd.run)
	queryCmd.id = qc.Arg("id", "ID of the query.").Required().String()

	readCmd := &readCommand{global: g}
	rc := app.Command("read", "Print the rows of a stored result as JSON lines.").Action(readCmd.run)
	readCmd.uri = rc.Arg("uri", "URI of the stored result.").Required().String()

	verifyCmd := &verifyCommand{global: g}
	app.Command("verify-config", "Load and validate the configuration, then exit.").Action(verifyCmd.run)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

// setup loads the config and builds the app with a fresh registry.
func setup(ctx context.Context, g *globalFlags) (*cqlflow.CQLFlow, error) {
	c, err := g.load()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		versioncollector.NewCollector("cqlflow"),
	)
	logger := util_log.InitLogger(c.LogLevel, c.LogFormat, reg)

	return cqlflow.New(ctx, c, logger, reg)
}

type runCommand struct {
	global *globalFlags
}

func (cmd *runCommand) run(_ *kingpin.ParseContext) error {
	ctx := context.Background()
	app, err := setup(ctx, cmd.global)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := util_log.Logger

	var defaults cqlflow.Config
	if err := cfg.Unmarshal(&defaults, cfg.Defaults()); err != nil {
		return err
	}

	triggers, err := app.TriggerManager()
	if err != nil {
		return err
	}

	var group run.Group
	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	addr := net.JoinHostPort(app.Cfg.Server.HTTPListenAddress, strconv.Itoa(app.Cfg.Server.HTTPListenPort))
	srv := &http.Server{Addr: addr, Handler: app.Handler(defaults)}
	group.Add(func() error {
		level.Info(logger).Log("msg", "server listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		_ = srv.Shutdown(context.Background())
	})

	group.Add(func() error {
		if err := services.StartAndAwaitRunning(ctx, triggers); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "triggers started", "count", len(app.Cfg.Triggers))
		return triggers.AwaitTerminated(context.Background())
	}, func(error) {
		triggers.StopAsync()
	})

	err = group.Run()
	if errors.Is(err, run.ErrSignal) {
		level.Info(logger).Log("msg", "shutting down", "reason", err)
		return nil
	}
	return err
}

type queryCommand struct {
	global *globalFlags
	id     *string
}

func (cmd *queryCommand) run(_ *kingpin.ParseContext) error {
	ctx := context.Background()
	app, err := setup(ctx, cmd.global)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := app.RunQuery(ctx, *cmd.id)
	if err != nil {
		return err
	}
	b, err := out.MarshalJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

type readCommand struct {
	global *globalFlags
	uri    *string
}

func (cmd *readCommand) run(_ *kingpin.ParseContext) error {
	ctx := context.Background()
	app, err := setup(ctx, cmd.global)
	if err != nil {
		return err
	}
	defer app.Close()

	_, err = app.ReadResult(ctx, *cmd.uri, os.Stdout)
	return err
}

type verifyCommand struct {
	global *globalFlags
}

func (cmd *verifyCommand) run(_ *kingpin.ParseContext) error {
	c, err := cmd.global.load()
	if err != nil {
		return err
	}
	fmt.Printf("config is valid: %d queries, %d triggers\n", len(c.Queries), len(c.Triggers))
	return nil
}
