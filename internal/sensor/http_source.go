package sensor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricNames maps each snapshot field to the metric family name exposed by the
// acquisition node.
type MetricNames struct {
	RPM            string `json:"rpm" yaml:"rpm"`
	OilPressurePa  string `json:"oil_pressure_pa" yaml:"oil_pressure_pa"`
	OilTempC       string `json:"oil_temp_c" yaml:"oil_temp_c"`
	CoolantTempC   string `json:"coolant_temp_c" yaml:"coolant_temp_c"`
	CoolantFlowLpm string `json:"coolant_flow_lpm" yaml:"coolant_flow_lpm"`
	StarterBattV   string `json:"starter_batt_v" yaml:"starter_batt_v"`
}

// DefaultMetricNames returns the names published by the reference acquisition exporter.
func DefaultMetricNames() MetricNames {
	return MetricNames{
		RPM:            "genset_engine_rpm",
		OilPressurePa:  "genset_oil_pressure_pascals",
		OilTempC:       "genset_oil_temperature_celsius",
		CoolantTempC:   "genset_coolant_temperature_celsius",
		CoolantFlowLpm: "genset_coolant_flow_liters_per_minute",
		StarterBattV:   "genset_starter_battery_volts",
	}
}

// HTTPSource acquires snapshots by scraping an acquisition node that publishes
// its readings in the Prometheus text exposition format.
type HTTPSource struct {
	url        string
	names      MetricNames
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource creates a source scraping url. The timeout bounds one scrape and
// should be well under the supervisor tick interval.
func NewHTTPSource(url string, names MetricNames, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &HTTPSource{
		url:    url,
		names:  names,
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Acquire performs one scrape and converts it to a Snapshot.
func (s *HTTPSource) Acquire(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	families, err := decodeFamilies(resp.Body)
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := s.snapshotFrom(families)
	if err != nil {
		return Snapshot{}, err
	}
	snap.At = time.Now()

	if s.logger != nil {
		s.logger.Debug("sensor_scraped", "url", s.url, "families", len(families))
	}
	return snap, nil
}

// decodeFamilies parses a text exposition into metric families keyed by name.
func decodeFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}

func (s *HTTPSource) snapshotFrom(families map[string]*dto.MetricFamily) (Snapshot, error) {
	var snap Snapshot
	var err error

	read := func(name string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = sampleValue(families, name)
		return v
	}

	snap.RPM = int(read(s.names.RPM))
	snap.OilPressurePa = int(read(s.names.OilPressurePa))
	snap.OilTempC = int(read(s.names.OilTempC))
	snap.CoolantTempC = int(read(s.names.CoolantTempC))
	snap.CoolantFlowLpm = int(read(s.names.CoolantFlowLpm))
	snap.StarterBattV = read(s.names.StarterBattV)

	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// sampleValue returns the value of the first sample of the named family.
// Gauges, counters and untyped samples are accepted.
func sampleValue(families map[string]*dto.MetricFamily, name string) (float64, error) {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric %q missing from exposition", name)
	}

	m := mf.GetMetric()[0]
	switch mf.GetType() {
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), nil
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), nil
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), nil
	default:
		return 0, fmt.Errorf("metric %q has unsupported type %s", name, mf.GetType())
	}
}
