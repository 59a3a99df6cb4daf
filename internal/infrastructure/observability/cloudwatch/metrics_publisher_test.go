package cloudwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

type fakeMetricsClient struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeMetricsClient) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakeMetricsClient) datums() []types.MetricDatum {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.MetricDatum
	for _, in := range f.inputs {
		out = append(out, in.MetricData...)
	}
	return out
}

func newTestMetricsPublisher(t *testing.T, client *fakeMetricsClient) *MetricsPublisher {
	t.Helper()
	p, err := newMetricsPublisher(client, MetricsPublisherConfig{
		Namespace:         "MonitorDW/Test",
		DefaultDimensions: map[string]string{"Environment": "test"},
		BufferSize:        100,
		FlushInterval:     time.Hour,
	}, logger.New("error"))
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func findDatum(data []types.MetricDatum, name string, dim ...string) (types.MetricDatum, bool) {
	for _, d := range data {
		if aws.ToString(d.MetricName) != name {
			continue
		}
		if len(dim) == 2 && !hasDimension(d, dim[0], dim[1]) {
			continue
		}
		return d, true
	}
	return types.MetricDatum{}, false
}

func hasDimension(d types.MetricDatum, name, value string) bool {
	for _, dim := range d.Dimensions {
		if aws.ToString(dim.Name) == name && aws.ToString(dim.Value) == value {
			return true
		}
	}
	return false
}

func TestMapUnit(t *testing.T) {
	tests := []struct {
		unit     string
		expected types.StandardUnit
	}{
		{"%", types.StandardUnitPercent},
		{"ms", types.StandardUnitMilliseconds},
		{"s", types.StandardUnitSeconds},
		{"count", types.StandardUnitCount},
		{"min", types.StandardUnitNone},
	}

	for _, tt := range tests {
		if got := mapUnit(tt.unit); got != tt.expected {
			t.Errorf("mapUnit(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestMetricsPublisherFlushesCycleDatums(t *testing.T) {
	client := &fakeMetricsClient{}
	p := newTestMetricsPublisher(t, client)

	age := 1500
	kpi := 0.15
	collected := time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)
	err := p.PublishCycle(context.Background(), port.CycleMetrics{
		CollectedAt:       collected,
		Flags:             valueobject.AnomalyFlags{QueryBad: true, RefreshBad: true},
		RunningOver:       3,
		RefreshAgeMinutes: &age,
		KpiPercentage:     &kpi,
		Outcome:           valueobject.OutcomeSent,
		Duration:          1200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("PublishCycle failed: %v", err)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(client.inputs) != 1 || aws.ToString(client.inputs[0].Namespace) != "MonitorDW/Test" {
		t.Fatalf("expected one request in namespace, got %d", len(client.inputs))
	}

	data := client.datums()
	if d, ok := findDatum(data, MetricAnomalyCount); !ok || aws.ToFloat64(d.Value) != 2 {
		t.Errorf("expected AnomalyCount=2, got %+v", d)
	} else if !hasDimension(d, "Environment", "test") {
		t.Errorf("expected default dimension on %s", MetricAnomalyCount)
	} else if !aws.ToTime(d.Timestamp).Equal(collected) {
		t.Errorf("unexpected timestamp %v", aws.ToTime(d.Timestamp))
	}
	if d, ok := findDatum(data, MetricRefreshAge); !ok || aws.ToFloat64(d.Value) != 1500 {
		t.Errorf("expected RefreshAgeMinutes=1500, got %+v", d)
	}
	if d, ok := findDatum(data, MetricKpiPercentage); !ok || aws.ToFloat64(d.Value) != 15 || d.Unit != types.StandardUnitPercent {
		t.Errorf("expected KpiPercentage=15%%, got %+v", d)
	}
	if d, ok := findDatum(data, MetricCycleDuration); !ok || aws.ToFloat64(d.Value) != 1200 {
		t.Errorf("expected CycleDurationMs=1200, got %+v", d)
	}
	if _, ok := findDatum(data, MetricDispatchOutcome, "Outcome", "sent"); !ok {
		t.Errorf("expected DispatchOutcome with Outcome=sent")
	}
	if d, ok := findDatum(data, MetricAnomalyActive, "Kind", "queries"); !ok || aws.ToFloat64(d.Value) != 1 {
		t.Errorf("expected queries active, got %+v", d)
	}
	if d, ok := findDatum(data, MetricAnomalyActive, "Kind", "tickets"); !ok || aws.ToFloat64(d.Value) != 0 {
		t.Errorf("expected tickets inactive, got %+v", d)
	}
}

func TestMetricsPublisherSkipsUnknownValues(t *testing.T) {
	client := &fakeMetricsClient{}
	p := newTestMetricsPublisher(t, client)

	_ = p.PublishCycle(context.Background(), port.CycleMetrics{
		CollectedAt: time.Now(),
		Outcome:     valueobject.OutcomeHealthy,
	})
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data := client.datums()
	if _, ok := findDatum(data, MetricRefreshAge); ok {
		t.Error("expected no RefreshAgeMinutes when age is unknown")
	}
	if _, ok := findDatum(data, MetricKpiPercentage); ok {
		t.Error("expected no KpiPercentage when kpi is absent")
	}
}

func TestMetricsPublisherEmptyFlushIsNoop(t *testing.T) {
	client := &fakeMetricsClient{}
	p := newTestMetricsPublisher(t, client)

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(client.inputs) != 0 {
		t.Fatalf("expected no requests, got %d", len(client.inputs))
	}
}

func TestMetricsPublisherRequeuesOnFailure(t *testing.T) {
	client := &fakeMetricsClient{err: errors.New("throttled")}
	p := newTestMetricsPublisher(t, client)

	_ = p.PublishCycle(context.Background(), port.CycleMetrics{CollectedAt: time.Now()})
	if err := p.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}

	client.mu.Lock()
	client.err = nil
	client.mu.Unlock()

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected requeued cycle to be sent, got %d requests", len(client.inputs))
	}
}

func TestNewMetricsPublisherValidation(t *testing.T) {
	if _, err := newMetricsPublisher(&fakeMetricsClient{}, MetricsPublisherConfig{}, logger.New("error")); err == nil {
		t.Error("expected namespace validation error")
	}
	if _, err := NewMetricsPublisher(context.Background(), MetricsPublisherConfig{Namespace: "x"}, logger.New("error")); err == nil {
		t.Error("expected region validation error")
	}
}
