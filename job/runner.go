package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/overmindtech/flightctl/config"
	"github.com/overmindtech/flightctl/flight"
	"github.com/overmindtech/flightctl/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Discoverer finds out how to reach data. *discovery.Discovery implements this
type Discoverer interface {
	DiscoverAsset(ctx context.Context, asset flight.AssetRef) (*flight.DiscoveryResult, error)
	DiscoverPath(ctx context.Context, connection flight.AssetRef, path string) (*flight.DiscoveryResult, error)
	Options(result *flight.DiscoveryResult) *flight.OptionsBuilder
}

// Settings are applied to every read and write
type Settings struct {
	Format        string
	BatchSize     int
	NumPartitions int
	Timeout       string
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		Format:        config.DefaultFormat,
		BatchSize:     config.DefaultBatchSize,
		NumPartitions: config.DefaultNumPartitions,
		Timeout:       config.DefaultFlightTimeout,
	}
}

// SettingsFromConfig takes the tunables from c
func SettingsFromConfig(c *config.Config) Settings {
	return Settings{
		Format:        c.Format,
		BatchSize:     c.BatchSize,
		NumPartitions: c.NumPartitions,
		Timeout:       c.FlightTimeout,
	}
}

// Job describes what to join and where to put it
type Job struct {
	Names      flight.AssetRef
	Numerals   flight.AssetRef
	JoinColumn string
	Connection flight.AssetRef
	ResultPath string
}

// FromConfig builds the job described by c
func FromConfig(c *config.Config) (Job, error) {
	names, err := c.Asset(c.NameAsset)
	if err != nil {
		return Job{}, err
	}

	numerals, err := c.Asset(c.NumeralAsset)
	if err != nil {
		return Job{}, err
	}

	connection, err := c.ConnectionRef(c.Connection)
	if err != nil {
		return Job{}, err
	}

	if c.JoinColumnName == "" {
		return Job{}, &flight.ConfigError{Key: config.KeyJoinColumnName, Reason: config.ReasonUndefined}
	}

	return Job{
		Names:      names,
		Numerals:   numerals,
		JoinColumn: c.JoinColumnName,
		Connection: connection,
		ResultPath: c.ResultPath,
	}, nil
}

// Runner drives an Engine through a Job
type Runner struct {
	RunID       uuid.UUID
	Discoverer  Discoverer
	Engine      Engine
	Settings    Settings
	AccessToken string
}

// NewRunner creates a Runner with a fresh run ID
func NewRunner(discoverer Discoverer, engine Engine, settings Settings, accessToken string) *Runner {
	return &Runner{
		RunID:       uuid.New(),
		Discoverer:  discoverer,
		Engine:      engine,
		Settings:    settings,
		AccessToken: accessToken,
	}
}

// Run discovers the inputs and output then reads, joins and writes. Nothing
// is read unless every input was discovered
func (r *Runner) Run(ctx context.Context, job Job) (err error) {
	if r.Discoverer == nil || r.Engine == nil {
		return errors.New("runner needs both a discoverer and an engine")
	}

	ctx, span := tracing.Tracer().Start(ctx, "Runner.Run", trace.WithAttributes(
		attribute.String("flight.job.runID", r.RunID.String()),
		attribute.String("flight.job.names", job.Names.ID()),
		attribute.String("flight.job.numerals", job.Numerals.ID()),
		attribute.String("flight.job.connection", job.Connection.ID()),
		attribute.String("flight.job.resultPath", job.ResultPath),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "Completed")
		}
	}()

	lf := log.Fields{"flight.job.runID": r.RunID.String()}

	sources, err := r.discoverSources(ctx, job.Names, job.Numerals)
	if err != nil {
		return err
	}

	names, err := r.read(ctx, sources[0])
	if err != nil {
		return fmt.Errorf("error reading %v: %w", job.Names.ID(), err)
	}

	numerals, err := r.read(ctx, sources[1])
	if err != nil {
		return fmt.Errorf("error reading %v: %w", job.Numerals.ID(), err)
	}

	joined, err := names.Join(ctx, numerals, job.JoinColumn)
	if err != nil {
		return fmt.Errorf("error joining on %v: %w", job.JoinColumn, err)
	}

	target, err := r.Discoverer.DiscoverPath(ctx, job.Connection, job.ResultPath)
	if err != nil {
		return err
	}

	log.WithContext(ctx).WithFields(lf).Info(">>> Connection/path discovery = " + target.Pretty())

	options := r.defaultOptions(target).Build()

	err = r.Engine.Write(ctx, joined, r.Settings.Format, options, SaveModeOverwrite)
	if err != nil {
		return fmt.Errorf("error writing %v: %w", job.ResultPath, err)
	}

	log.WithContext(ctx).WithFields(lf).Info("Job complete")

	return nil
}

// discoverSources discovers both assets at once. Results are in the same order
// as the assets
func (r *Runner) discoverSources(ctx context.Context, assets ...flight.AssetRef) ([]*flight.DiscoveryResult, error) {
	results := make([]*flight.DiscoveryResult, len(assets))

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, asset := range assets {
		p.Go(func(ctx context.Context) error {
			result, err := r.Discoverer.DiscoverAsset(ctx, asset)
			if err != nil {
				return err
			}

			log.WithContext(ctx).WithFields(log.Fields{
				"flight.job.runID": r.RunID.String(),
				"flight.asset":     asset.ID(),
			}).Info(">>> Asset discovery = " + result.Pretty())

			results[i] = result
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (r *Runner) read(ctx context.Context, source *flight.DiscoveryResult) (Dataset, error) {
	options := r.defaultOptions(source).NumPartitions(r.Settings.NumPartitions).Build()

	return r.Engine.Read(ctx, r.Settings.Format, options)
}

// defaultOptions sets what both reads and writes need
func (r *Runner) defaultOptions(result *flight.DiscoveryResult) *flight.OptionsBuilder {
	return r.Discoverer.Options(result).
		AccessToken(r.AccessToken).
		BatchSize(r.Settings.BatchSize).
		Timeout(r.Settings.Timeout)
}
