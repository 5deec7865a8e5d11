package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli"
	"github.com/valyala/fasthttp"

	"pkgbind/internal/api"
	"pkgbind/internal/bindings"
	"pkgbind/internal/builtin"
	"pkgbind/internal/callback"
	"pkgbind/internal/config"
	"pkgbind/internal/log"
	"pkgbind/internal/metrics"
	"pkgbind/internal/types"
	"pkgbind/internal/value"
)

const Name = "pkgbind"
const MaxRequestBodySize = 16 * 1024 * 1024

// Engine ties the bindings to the registry every transport calls through.
type Engine struct {
	Config   *config.Config
	Bindings *bindings.PkgFunctions
	Registry *builtin.Registry
}

// Build opens the bindings described by cfg and registers all builtins.
// Callbacks are posted to cfg.CallbackURL when it is set.
func Build(cfg *config.Config) (*Engine, error) {
	var invoker callback.Invoker
	if cfg.CallbackURL != "" {
		invoker = callback.NewWebhookInvoker(cfg.CallbackURL)
		log.Logger.Infof("Callbacks are posted to %s", cfg.CallbackURL)
	}

	pkg, err := bindings.New(cfg, callback.NewRegistry(invoker))
	if err != nil {
		return nil, err
	}
	reg := builtin.NewRegistry()
	pkg.Register(reg)

	return &Engine{Config: cfg, Bindings: pkg, Registry: reg}, nil
}

func (e *Engine) Close() error {
	return e.Bindings.Close()
}

// Autorefresh refreshes every enabled repository that has autorefresh
// set and returns the number of successful refreshes.
func (e *Engine) Autorefresh(ctx context.Context) int {
	current, err := e.Registry.Call(ctx, "SourceGetCurrent", []value.Value{value.Bool(true)})
	if err != nil {
		log.Logger.Errorf("Autorefresh: %v", err)
		return 0
	}
	ids, _ := current.AsList()

	refreshed := 0
	for _, id := range ids {
		data, err := e.Registry.Call(ctx, "SourceGeneralData", []value.Value{id})
		if err != nil {
			continue
		}
		if auto, _ := data.Lookup("autorefresh").AsBool(); !auto {
			continue
		}
		res, err := e.Registry.Call(ctx, "SourceRefreshNow", []value.Value{id})
		if ok, _ := res.AsBool(); err != nil || !ok {
			metrics.RepoRefreshes.WithLabelValues("failed").Inc()
			log.Logger.Warnf("Autorefresh of repository %v failed", id)
			continue
		}
		metrics.RepoRefreshes.WithLabelValues("ok").Inc()
		refreshed++
	}
	log.Logger.Infof("Autorefresh done: %d of %d repositories refreshed", refreshed, len(ids))
	return refreshed
}

// StartAutorefresh schedules Autorefresh with a standard cron expression.
// An empty schedule returns a nil scheduler.
func (e *Engine) StartAutorefresh(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "parse autorefresh schedule %q", schedule)
	}
	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		e.Autorefresh(context.Background())
	}))
	c.Start()
	log.Logger.Infof("Autorefresh scheduled: %s", schedule)
	return c, nil
}

// LoadConfig reads the configuration named by the global flags and applies
// the flag overrides.
func LoadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if root := c.GlobalString("root"); root != "" {
		cfg.SetRoot(root)
	}
	if c.GlobalBool("debug") {
		cfg.Debug = true
		cfg.Complete()
	}
	if err := log.Init(cfg.Log, cfg.LogLevel); err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	return cfg, nil
}

func build(c *cli.Context) (*Engine, error) {
	cfg, err := LoadConfig(c)
	if err != nil {
		return nil, err
	}
	return Build(cfg)
}

// Run serves the builtins over HTTP until SIGINT or SIGTERM.
func Run(c *cli.Context) error {
	e, err := build(c)
	if err != nil {
		return err
	}
	defer log.Close()
	defer e.Close()

	cfg := e.Config
	if listen := c.String("listen"); listen != "" {
		cfg.Listen = listen
	}
	if schedule := c.String("autorefresh"); schedule != "" {
		cfg.AutorefreshSchedule = schedule
	}

	scheduler, err := e.StartAutorefresh(cfg.AutorefreshSchedule)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	server := &fasthttp.Server{
		Name:               Name,
		Handler:            api.SetupRouter(api.NewAPI(e.Registry, cfg, e.Bindings)),
		MaxRequestBodySize: MaxRequestBodySize,
		ReadTimeout:        time.Second * 60,
		// Builtins such as SourceLoad can take long on slow media.
		WriteTimeout: time.Minute * 30,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Logger.Infof("Received %s, shutting down", s)
		if err := server.Shutdown(); err != nil {
			log.Logger.Errorf("Shutdown: %v", err)
		}
	}()

	log.Logger.Infof("Server starting on %s", cfg.Listen)
	return server.ListenAndServe(cfg.Listen)
}

// Call runs one builtin. Every argument is decoded as JSON; arguments
// that are not valid JSON are passed as strings.
func Call(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: call NAME [JSON-ARGS...]", 2)
	}
	e, err := build(c)
	if err != nil {
		return err
	}
	defer log.Close()
	defer e.Close()

	name := c.Args().First()
	args := ParseArgs(c.Args().Tail())
	return invoke(context.Background(), e.Registry, name, args, os.Stdout)
}

// ParseArgs decodes command line arguments into scripting values.
func ParseArgs(raw []string) []value.Value {
	args := make([]value.Value, 0, len(raw))
	for _, s := range raw {
		var v value.Value
		if err := v.UnmarshalJSON([]byte(s)); err != nil {
			v = value.String(s)
		}
		args = append(args, v)
	}
	return args
}

func invoke(ctx context.Context, reg *builtin.Registry, name string, args []value.Value, w io.Writer) error {
	resp := &types.CallResponse{Status: "success", Builtin: name}
	result, err := reg.Call(ctx, name, args)
	if err != nil {
		resp.Status, resp.Error = "error", err.Error()
	}
	resp.Result = result
	if _, werr := resp.WriteTo(w); werr != nil {
		return werr
	}
	fmt.Fprintln(w)
	if err != nil {
		return cli.NewExitError("", 1)
	}
	return nil
}

// Builtins prints every registered builtin with its parameter kinds.
func Builtins(c *cli.Context) error {
	reg := builtin.NewRegistry()
	(&bindings.PkgFunctions{}).Register(reg)
	return listBuiltins(reg, os.Stdout)
}

func listBuiltins(reg *builtin.Registry, w io.Writer) error {
	for _, name := range reg.Names() {
		params, _ := reg.Signature(name)
		kinds := make([]string, len(params))
		for i, k := range params {
			kinds[i] = k.String()
		}
		if _, err := fmt.Fprintf(w, "%s(%s)\n", name, strings.Join(kinds, ", ")); err != nil {
			return err
		}
	}
	return nil
}
