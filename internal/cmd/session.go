package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/harrison/ptw/internal/config"
	"github.com/harrison/ptw/internal/engine"
	"github.com/harrison/ptw/internal/lifecycle"
	"github.com/harrison/ptw/internal/logger"
	"github.com/harrison/ptw/internal/models"
	"github.com/harrison/ptw/internal/schema"
	"github.com/harrison/ptw/internal/store"
)

const meterName = "github.com/harrison/ptw"

// session is everything one command invocation works with.
type session struct {
	cfg     *config.Config
	root    string
	log     *logger.ConsoleLogger
	reg     *schema.Registry
	repo    store.Repository
	engine  *engine.Engine
	machine *lifecycle.Machine

	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider

	out    io.Writer
	errOut io.Writer
}

// openSession loads configuration, merges the persistent flags and builds the
// registry, engine and lifecycle machine. The permit store is opened only when
// withStore is set.
func openSession(cmd *cobra.Command, withStore bool) (*session, error) {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	cfg.MergeWithFlags(
		changedString(cmd, "log-level"),
		changedString(cmd, "as"),
		changedString(cmd, "store-driver"),
		changedString(cmd, "store-path"),
		changedString(cmd, "dsn"),
	)
	if dir := changedString(cmd, "schema-dir"); dir != nil {
		cfg.SchemaDir = *dir
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &session{
		cfg:    cfg,
		root:   root,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
	s.log = logger.NewConsoleLogger(s.errOut, cfg.LogLevel)

	if cfg.SchemaDir != "" {
		s.reg, err = schema.LoadDir(cfg.SchemaDir)
	} else {
		s.reg, err = schema.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load questionnaires: %w", err)
	}

	engineOpts := []engine.Option{engine.WithLogger(s.log)}
	machineOpts := []lifecycle.Option{lifecycle.WithLogger(s.log)}
	if cfg.Metrics.Enabled {
		s.reader = sdkmetric.NewManualReader()
		s.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(s.reader))
		meter := s.provider.Meter(meterName)
		engineOpts = append(engineOpts, engine.WithMeter(meter))
		machineOpts = append(machineOpts, lifecycle.WithMeter(meter))
	}
	s.engine = engine.New(s.reg, engineOpts...)
	s.machine = lifecycle.New(s.reg, machineOpts...)

	if withStore {
		s.repo, err = store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
		s.log.LogDebug(fmt.Sprintf("Using %s store at %s", cfg.Store.Driver, storeLocation(cfg.Store)))
	}

	return s, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	if path := changedString(cmd, "config"); path != nil {
		cfg, err := config.LoadConfig(*path)
		if err != nil {
			return nil, "", err
		}
		root, err := config.ProjectRoot()
		if err != nil {
			return nil, "", err
		}
		return cfg, root, nil
	}
	return config.Load()
}

func storeLocation(sc config.StoreConfig) string {
	if sc.Driver == config.DriverPostgres {
		return "postgres"
	}
	return sc.Path
}

func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// close releases the store and, when metrics are enabled, prints every
// counter collected during the command.
func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if s.provider != nil {
		if err := s.printMetrics(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *session) printMetrics(ctx context.Context) error {
	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				attrs := dp.Attributes.Encoded(attribute.DefaultEncoder())
				if attrs != "" {
					attrs = "{" + attrs + "}"
				}
				lines = append(lines, fmt.Sprintf("%s%s %d", m.Name, attrs, dp.Value))
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}
	sort.Strings(lines)
	fmt.Fprintln(s.errOut, "Metrics:")
	for _, l := range lines {
		fmt.Fprintf(s.errOut, "  %s\n", l)
	}
	return nil
}

// load fetches a permit and warns when it was recorded against an
// incompatible questionnaire registry.
func (s *session) load(ctx context.Context, id string) (*models.Permit, error) {
	p, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load permit %s: %w", id, err)
	}
	if p.SchemaVersion != "" && !s.reg.Compatible(p.SchemaVersion) {
		s.log.LogWarn(fmt.Sprintf("Permit %s was recorded with questionnaires %s; loaded registry is %s",
			p.ID, p.SchemaVersion, s.reg.Version()))
	}
	return p, nil
}

func (s *session) save(ctx context.Context, p *models.Permit) error {
	if err := s.repo.Save(ctx, p); err != nil {
		return fmt.Errorf("save permit %s: %w", p.ID, err)
	}
	return nil
}

// operator returns the actor for lifecycle actions.
func (s *session) operator() (string, error) {
	if s.cfg.Operator == "" {
		return "", fmt.Errorf("no operator: pass --as or set operator in %s/%s", config.DirName, config.FileName)
	}
	return s.cfg.Operator, nil
}

// withSession opens a session around fn and closes it afterwards.
func withSession(cmd *cobra.Command, withStore bool, fn func(s *session) error) error {
	s, err := openSession(cmd, withStore)
	if err != nil {
		return err
	}
	runErr := fn(s)
	closeErr := s.close(cmd.Context())
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// editPermit loads a permit, applies fn and saves the result.
func editPermit(cmd *cobra.Command, id string, fn func(s *session, p *models.Permit) (*models.Permit, error)) error {
	return withSession(cmd, true, func(s *session) error {
		ctx := cmd.Context()
		p, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(s, p)
		if err != nil {
			return err
		}
		return s.save(ctx, next)
	})
}
