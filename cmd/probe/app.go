package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/wondertwin-ai/apiprobe/internal/auth"
	"github.com/wondertwin-ai/apiprobe/internal/client"
	"github.com/wondertwin-ai/apiprobe/internal/config"
	"github.com/wondertwin-ai/apiprobe/internal/dbcheck"
	"github.com/wondertwin-ai/apiprobe/internal/harness"
	"github.com/wondertwin-ai/apiprobe/internal/logging"
	"github.com/wondertwin-ai/apiprobe/internal/metrics"
	"github.com/wondertwin-ai/apiprobe/internal/probes"
	"github.com/wondertwin-ai/apiprobe/internal/report"
	"github.com/wondertwin-ai/apiprobe/internal/scenario"
	"github.com/wondertwin-ai/apiprobe/internal/twin"
)

// app carries what every command needs once the global flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	log    *logrus.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	a := &app{stdout: stdout, stderr: stderr}
	return &cli.App{
		Name:      "probe",
		Usage:     "integration probes for the marketplace API",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		// Exit codes are mapped by run, never by os.Exit inside the library.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultFile,
				EnvVars: []string{"PROBE_CONFIG"},
				Usage:   "path to the probe config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run the built-in probe suites",
				ArgsUsage: "[suite...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "base-url", Usage: "API under test"},
					&cli.Float64Flag{Name: "threshold", Value: -1, Usage: "pass rate required to exit 0"},
					&cli.StringFlag{Name: "report-json", Usage: "write the summary as JSON to this path"},
					&cli.BoolFlag{Name: "reset-twin", Usage: "reset the twin through its admin API before running"},
				},
				Action: a.withConfig(a.runSuites),
			},
			{
				Name:      "test",
				Usage:     "run JSON/YAML scenarios",
				ArgsUsage: "[path]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "base-url", Usage: "API under test"},
					&cli.Float64Flag{Name: "threshold", Value: -1, Usage: "pass rate required to exit 0"},
					&cli.StringFlag{Name: "report-json", Usage: "write the summary as JSON to this path"},
				},
				Action: a.withConfig(a.runScenarios),
			},
			{
				Name:  "token",
				Usage: "print a forged session token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Value: auth.RoleUser},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "user-id"},
				},
				Action: a.withConfig(a.token),
			},
			{
				Name:  "twin",
				Usage: "serve the in-memory API twin",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "listen port (default twin.port)"},
				},
				Action: a.withConfig(a.serveTwin),
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(a.stdout, "probe %s\n", version)
					return nil
				},
			},
		},
	}
}

// withConfig loads the config before action runs, so commands that never
// read it, like version and help, work with a broken config file.
func (a *app) withConfig(action cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := a.load(c); err != nil {
			return err
		}
		return action(c)
	}
}

func (a *app) load(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Log, a.stderr)
	return nil
}

// applyRunFlags folds the per-command overrides into the loaded config.
func (a *app) applyRunFlags(c *cli.Context) error {
	if u := c.String("base-url"); u != "" {
		a.cfg.BaseURL = u
	}
	if t := c.Float64("threshold"); t >= 0 {
		a.cfg.PassThreshold = t
	}
	if p := c.String("report-json"); p != "" {
		a.cfg.Report.JSONPath = p
	}
	return a.cfg.Validate()
}

// forger returns nil when no secret is configured; probes that need one skip.
func (a *app) forger() *auth.Forger {
	f, err := auth.NewForger(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
	if err != nil {
		a.log.Warn("no JWT secret configured, impersonation checks will be skipped")
		return nil
	}
	return f
}

func (a *app) harness(rec *metrics.Recorder) (*harness.Harness, error) {
	return harness.New(harness.Options{
		BaseURL:  a.cfg.BaseURL,
		Timeout:  a.cfg.Timeout,
		Out:      a.stdout,
		Logger:   a.log,
		Recorder: rec,
	})
}

func (a *app) runSuites(c *cli.Context) error {
	if err := a.applyRunFlags(c); err != nil {
		return err
	}
	ctx := c.Context

	names := c.Args().Slice()
	if len(names) == 0 {
		names = a.cfg.Suites
	}
	suites, err := probes.Select(names)
	if err != nil {
		return err
	}

	var admin *client.AdminClient
	if a.cfg.TwinAdminURL != "" {
		admin = client.New(a.cfg.TwinAdminURL)
	}
	if admin != nil {
		if ok, msg := admin.Health(ctx); !ok {
			return fmt.Errorf("twin admin at %s is not healthy: %s", a.cfg.TwinAdminURL, msg)
		}
	}
	if c.Bool("reset-twin") {
		if admin == nil {
			return errors.New("--reset-twin needs twin_admin_url")
		}
		if _, err := admin.Reset(ctx); err != nil {
			return err
		}
	}

	db, err := dbcheck.Open(ctx, a.cfg)
	switch {
	case errors.Is(err, dbcheck.ErrNotConfigured):
		db = nil
	case err != nil:
		a.log.WithError(err).Warn("database checks disabled")
		db = nil
	default:
		defer db.Close()
	}

	rec := metrics.New()
	h, err := a.harness(rec)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Probing %s\n", h.BaseURL())
	probes.Run(ctx, &probes.Env{
		H:           h,
		Forger:      a.forger(),
		CookieName:  a.cfg.Auth.CookieName,
		Admin:       admin,
		DB:          db,
		EmailDomain: a.cfg.Auth.EmailDomain,
		Log:         a.log,
	}, suites)

	return a.finish(c, h, rec)
}

func (a *app) runScenarios(c *cli.Context) error {
	if err := a.applyRunFlags(c); err != nil {
		return err
	}
	ctx := c.Context

	path := "./scenarios/"
	if c.Args().Present() {
		path = c.Args().First()
	}
	scenarios, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return fmt.Errorf("no scenarios found in %s", path)
	}

	rec := metrics.New()
	h, err := a.harness(rec)
	if err != nil {
		return err
	}
	runner := scenario.NewRunner(scenario.Options{
		Harness:     h,
		Forger:      a.forger(),
		CookieName:  a.cfg.Auth.CookieName,
		EmailDomain: a.cfg.Auth.EmailDomain,
		Logger:      a.log,
	})

	var passed, skipped int
	for _, s := range scenarios {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(a.stdout, "\n--- %s ---\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(a.stdout, "  %s\n", s.Description)
		}
		res := runner.Run(ctx, s)
		printScenarioResult(a.stdout, res)
		switch {
		case res.Skipped:
			skipped++
		case res.Passed:
			passed++
		}
	}
	fmt.Fprintf(a.stdout, "\nScenarios: %d passed, %d failed, %d skipped\n", passed, len(scenarios)-passed-skipped, skipped)

	return a.finish(c, h, rec)
}

func printScenarioResult(w io.Writer, res *scenario.Result) {
	switch {
	case res.Skipped:
		fmt.Fprintf(w, "\n  Scenario: SKIPPED\n")
	case res.Passed:
		fmt.Fprintf(w, "\n  Scenario: PASSED (%s)\n", res.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "\n  Scenario: FAILED (%s)\n", res.Duration.Round(time.Millisecond))
		for _, step := range res.Steps {
			if !step.Passed {
				fmt.Fprintf(w, "    %s: %s\n", step.Name, step.Error)
			}
		}
	}
}

// finish prints the summary, exports it, and turns the pass rate into the
// exit code.
func (a *app) finish(c *cli.Context, h *harness.Harness, rec *metrics.Recorder) error {
	summary := report.Summarize(h.Results(), a.cfg.Report.Categories)
	report.Print(a.stdout, summary)

	if p := a.cfg.Report.JSONPath; p != "" {
		if err := report.WriteJSON(p, summary); err != nil {
			a.log.WithError(err).Error("report not written")
		}
	}
	if u := a.cfg.Metrics.PushgatewayURL; u != "" {
		if err := rec.Push(c.Context, u, a.cfg.Metrics.Job); err != nil {
			a.log.WithError(err).Warn("metrics not pushed")
		}
	}

	if code := report.ExitCode(summary, a.cfg.PassThreshold); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func (a *app) token(c *cli.Context) error {
	f, err := auth.NewForger(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("%w (set PROBE_JWT_SECRET or auth.jwt_secret)", err)
	}
	tok, err := f.Forge(auth.Identity{
		UserID: c.String("user-id"),
		Email:  c.String("email"),
		Role:   c.String("role"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, tok)
	return nil
}

func (a *app) serveTwin(c *cli.Context) error {
	port := a.cfg.Twin.Port
	if c.IsSet("port") {
		port = c.Int("port")
	}
	tw, err := twin.New(twin.Options{
		Secret:      a.cfg.Auth.JWTSecret,
		CookieName:  a.cfg.Auth.CookieName,
		TokenTTL:    a.cfg.Auth.TokenTTL,
		OTPTTL:      a.cfg.Twin.OTPTTL,
		MaxAttempts: a.cfg.Twin.MaxAttempts,
		Logger:      a.log,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Twin listening on :%d (Ctrl+C to stop)\n", port)
	return tw.Serve(c.Context, fmt.Sprintf(":%d", port))
}
