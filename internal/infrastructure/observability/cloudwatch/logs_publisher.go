package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/monitor-dw/internal/application/port"
)

// CloudWatch Logs limits.
const (
	maxLogEventsPerRequest = 10000
	maxLogBatchSize        = 1048576
	logEventOverhead       = 26
	maxLogEventSize        = 256000
)

type logsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// LogsPublisherConfig holds configuration for CloudWatch Logs publishing.
type LogsPublisherConfig struct {
	LogGroupName    string
	LogStreamName   string
	Service         string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	MaxBuffered     int
	FlushInterval   time.Duration
	AutoCreate      bool
}

// LogsPublisher mirrors logger output to CloudWatch Logs. It implements port.LogPublisher.
// Publish never performs network I/O; a full buffer only wakes the flush loop.
type LogsPublisher struct {
	client        logsAPI
	logGroupName  string
	logStreamName string
	service       string

	buffer      []port.LogEntry
	bufferSize  int
	maxBuffered int
	dropped     int
	mu          sync.Mutex

	flushCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	interval time.Duration
}

// NewLogsPublisher creates a CloudWatch Logs client from cfg and starts the flush loop.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return newLogsPublisher(ctx, cloudwatchlogs.NewFromConfig(awsCfg), cfg)
}

func newLogsPublisher(ctx context.Context, client logsAPI, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.LogGroupName == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return nil, fmt.Errorf("log stream name is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	if cfg.MaxBuffered < cfg.BufferSize {
		cfg.MaxBuffered = cfg.BufferSize * 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	p := &LogsPublisher{
		client:        client,
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		service:       cfg.Service,
		buffer:        make([]port.LogEntry, 0, cfg.BufferSize),
		bufferSize:    cfg.BufferSize,
		maxBuffered:   cfg.MaxBuffered,
		flushCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		interval:      cfg.FlushInterval,
	}

	if cfg.AutoCreate {
		if err := p.ensureLogGroupAndStream(ctx); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// Publish buffers a single entry.
func (p *LogsPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	p.enqueue(entry)
	return nil
}

// PublishBatch buffers entries.
func (p *LogsPublisher) PublishBatch(_ context.Context, entries []port.LogEntry) error {
	p.enqueue(entries...)
	return nil
}

func (p *LogsPublisher) enqueue(entries ...port.LogEntry) {
	if len(entries) == 0 {
		return
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, entries...)
	// oldest entries go first when the sink is unreachable
	if over := len(p.buffer) - p.maxBuffered; over > 0 {
		p.buffer = append(p.buffer[:0], p.buffer[over:]...)
		p.dropped += over
	}
	full := len(p.buffer) >= p.bufferSize
	p.mu.Unlock()

	if full {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
}

// Dropped returns how many entries were discarded because the buffer overflowed.
func (p *LogsPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Flush sends all buffered entries, oldest first.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.buffer
	p.buffer = make([]port.LogEntry, 0, p.bufferSize)
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	events := make([]types.InputLogEvent, 0, len(pending))
	for _, entry := range pending {
		event, err := p.convertToLogEvent(entry)
		if err != nil {
			continue
		}
		events = append(events, event)
	}

	for _, batch := range splitLogBatches(events) {
		batch := batch
		err := withRetry(ctx, func(ctx context.Context) error {
			_, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
				LogGroupName:  aws.String(p.logGroupName),
				LogStreamName: aws.String(p.logStreamName),
				LogEvents:     batch,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to put log events: %w", err)
		}
	}

	return nil
}

// Close stops the flush loop and flushes what is left.
func (p *LogsPublisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	return p.Flush(ctx)
}

// flushLoop must not log through the logger it feeds; failures are dropped.
func (p *LogsPublisher) flushLoop() {
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
		_ = p.Flush(ctx)
		cancel()
	}
}

// splitLogBatches cuts events into PutLogEvents-sized requests by count and payload size.
func splitLogBatches(events []types.InputLogEvent) [][]types.InputLogEvent {
	var (
		batches [][]types.InputLogEvent
		current []types.InputLogEvent
		size    int
	)

	for _, event := range events {
		eventSize := len(aws.ToString(event.Message)) + logEventOverhead
		if len(current) > 0 && (len(current) >= maxLogEventsPerRequest || size+eventSize > maxLogBatchSize) {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, event)
		size += eventSize
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

func (p *LogsPublisher) convertToLogEvent(entry port.LogEntry) (types.InputLogEvent, error) {
	logData := map[string]interface{}{
		"timestamp": entry.Timestamp.UTC().Format(time.RFC3339Nano),
		"level":     string(entry.Level),
		"message":   entry.Message,
	}
	if p.service != "" {
		logData["service"] = p.service
	}
	if len(entry.Fields) > 0 {
		logData["fields"] = entry.Fields
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

func (p *LogsPublisher) ensureLogGroupAndStream(ctx context.Context) error {
	var alreadyExists *types.ResourceAlreadyExistsException

	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}
