package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// CloudWatch accepts at most 1000 datums per PutMetricData call.
const maxMetricsPerRequest = 1000

// Metric names published for every cycle.
const (
	MetricAnomalyCount    = "AnomalyCount"
	MetricAnomalyActive   = "AnomalyActive"
	MetricRunningOver     = "RunningOverThreshold"
	MetricRefreshAge      = "RefreshAgeMinutes"
	MetricOpenTickets     = "OpenTickets"
	MetricKpiPercentage   = "KpiPercentage"
	MetricCollectorErrors = "CollectorErrors"
	MetricCycleDuration   = "CycleDurationMs"
	MetricDispatchOutcome = "DispatchOutcome"
)

type putMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	Namespace         string
	Region            string
	Endpoint          string
	AccessKeyID       string
	SecretAccessKey   string
	DefaultDimensions map[string]string
	BufferSize        int
	FlushInterval     time.Duration
}

// MetricsPublisher buffers cycle metrics and ships them to CloudWatch.
// It implements port.CycleMetricsPublisher.
type MetricsPublisher struct {
	client            putMetricDataAPI
	namespace         string
	defaultDimensions []types.Dimension
	logger            *logger.Logger

	buffer     []port.CycleMetrics
	bufferSize int
	mu         sync.Mutex

	flushCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	interval time.Duration
}

// NewMetricsPublisher creates a CloudWatch client from cfg and starts the flush loop.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg, log)
}

func newMetricsPublisher(client putMetricDataAPI, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}

	dims := make([]types.Dimension, 0, len(cfg.DefaultDimensions))
	for name, value := range cfg.DefaultDimensions {
		dims = append(dims, types.Dimension{Name: aws.String(name), Value: aws.String(value)})
	}

	p := &MetricsPublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: dims,
		logger:            log,
		buffer:            make([]port.CycleMetrics, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		flushCh:           make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
		interval:          cfg.FlushInterval,
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// PublishCycle buffers one cycle. A full buffer wakes the flush loop.
func (p *MetricsPublisher) PublishCycle(_ context.Context, metrics port.CycleMetrics) error {
	p.mu.Lock()
	p.buffer = append(p.buffer, metrics)
	full := len(p.buffer) >= p.bufferSize
	p.mu.Unlock()

	if full {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush publishes everything buffered. On failure the cycles are kept for the next attempt.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.buffer
	p.buffer = make([]port.CycleMetrics, 0, p.bufferSize)
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	data := make([]types.MetricDatum, 0, len(pending)*12)
	for _, m := range pending {
		data = append(data, p.datumsFor(m)...)
	}

	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(data) {
			end = len(data)
		}

		chunk := data[i:end]
		err := withRetry(ctx, func(ctx context.Context) error {
			_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
				Namespace:  aws.String(p.namespace),
				MetricData: chunk,
			})
			return err
		})
		if err != nil {
			p.requeue(pending)
			return fmt.Errorf("failed to publish cycle metrics: %w", err)
		}
	}

	return nil
}

// Close stops the flush loop and flushes what is left.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return p.Flush(ctx)
}

func (p *MetricsPublisher) requeue(pending []port.CycleMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()

	merged := append(pending, p.buffer...)
	// never hold more than a few flushes worth of cycles
	if limit := p.bufferSize * 5; len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	p.buffer = merged
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.flushCh:
		case <-p.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := p.Flush(ctx); err != nil {
			p.logger.Error("CloudWatch metrics flush failed", err, "namespace", p.namespace)
		}
		cancel()
	}
}

// datumsFor converts one cycle into CloudWatch datums.
func (p *MetricsPublisher) datumsFor(m port.CycleMetrics) []types.MetricDatum {
	ts := aws.Time(m.CollectedAt)
	dims := p.defaultDimensions

	datum := func(name string, value float64, unit types.StandardUnit, extra ...types.Dimension) types.MetricDatum {
		d := make([]types.Dimension, 0, len(dims)+len(extra))
		d = append(d, dims...)
		d = append(d, extra...)
		return types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(value),
			Unit:       unit,
			Timestamp:  ts,
			Dimensions: d,
		}
	}

	out := []types.MetricDatum{
		datum(MetricAnomalyCount, float64(m.Flags.Count()), mapUnit("count")),
		datum(MetricRunningOver, float64(m.RunningOver), mapUnit("count")),
		datum(MetricOpenTickets, float64(m.OpenTickets), mapUnit("count")),
		datum(MetricCollectorErrors, float64(m.CollectorErrors), mapUnit("count")),
		datum(MetricCycleDuration, float64(m.Duration.Milliseconds()), mapUnit("ms")),
		datum(MetricDispatchOutcome, 1, mapUnit("count"), dimension("Outcome", string(m.Outcome))),
	}
	if m.RefreshAgeMinutes != nil {
		out = append(out, datum(MetricRefreshAge, float64(*m.RefreshAgeMinutes), mapUnit("min")))
	}
	if m.KpiPercentage != nil {
		out = append(out, datum(MetricKpiPercentage, *m.KpiPercentage*100, mapUnit("%")))
	}

	for _, kind := range valueobject.AllAnomalyKinds() {
		active := 0.0
		if m.Flags.Has(kind) {
			active = 1
		}
		out = append(out, datum(MetricAnomalyActive, active, mapUnit("count"), dimension("Kind", string(kind))))
	}

	return out
}

func dimension(name, value string) types.Dimension {
	return types.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// mapUnit maps unit suffixes to CloudWatch StandardUnit. Minutes have no
// CloudWatch unit and are sent as None.
func mapUnit(unit string) types.StandardUnit {
	switch unit {
	case "%":
		return types.StandardUnitPercent
	case "ms":
		return types.StandardUnitMilliseconds
	case "s":
		return types.StandardUnitSeconds
	case "count":
		return types.StandardUnitCount
	default:
		return types.StandardUnitNone
	}
}
