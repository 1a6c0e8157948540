package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/golang/snappy"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
)

// StartRemoteWrite pushes the tenant-labelled series to Mimir on every flush interval
// until ctx is done. It is a no-op when no Mimir URL is configured.
func (c *Collector) StartRemoteWrite(ctx context.Context, logger *zap.Logger) {
	if c.config.URL == "" {
		logger.Info("Mimir remote write disabled")
		return
	}

	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeToMimir(ctx); err != nil {
				logger.Warn("Remote write failed", zap.Error(err))
			}
		}
	}
}

func (c *Collector) writeToMimir(ctx context.Context) error {
	mfs, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	byTenant := groupByTenant(metricsToSamples(mfs, time.Now()))
	tenants := make([]string, 0, len(byTenant))
	for t := range byTenant {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	for _, tenantID := range tenants {
		series := byTenant[tenantID]
		for i := 0; i < len(series); i += c.config.BatchSize {
			end := i + c.config.BatchSize
			if end > len(series) {
				end = len(series)
			}
			if err := c.push(ctx, tenantID, series[i:end]); err != nil {
				return fmt.Errorf("failed to send batch for %s: %w", tenantID, err)
			}
		}
	}

	return nil
}

// metricsToSamples converts gathered families to remote write series. Series without a
// tenant_id label are skipped; they stay available through the scrape endpoint.
func metricsToSamples(mfs []*dto.MetricFamily, now time.Time) []prompb.TimeSeries {
	var samples []prompb.TimeSeries
	ts := now.UnixNano() / int64(time.Millisecond)

	for _, mf := range mfs {
		for _, m := range mf.Metric {
			var tenantID string
			labels := make([]prompb.Label, 0, len(m.Label)+1)

			for _, l := range m.Label {
				if l.GetName() == "tenant_id" {
					tenantID = l.GetValue()
				}
				labels = append(labels, prompb.Label{
					Name:  l.GetName(),
					Value: l.GetValue(),
				})
			}

			if tenantID == "" {
				continue
			}

			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				samples = append(samples, series(mf.GetName(), labels, m.Counter.GetValue(), ts))
			case dto.MetricType_GAUGE:
				samples = append(samples, series(mf.GetName(), labels, m.Gauge.GetValue(), ts))
			case dto.MetricType_HISTOGRAM:
				hist := m.Histogram
				for _, bucket := range hist.Bucket {
					bucketLabels := append(append([]prompb.Label{}, labels...), prompb.Label{
						Name:  "le",
						Value: fmt.Sprintf("%g", bucket.GetUpperBound()),
					})
					samples = append(samples, series(mf.GetName()+"_bucket", bucketLabels, float64(bucket.GetCumulativeCount()), ts))
				}
				infLabels := append(append([]prompb.Label{}, labels...), prompb.Label{Name: "le", Value: "+Inf"})
				samples = append(samples,
					series(mf.GetName()+"_bucket", infLabels, float64(hist.GetSampleCount()), ts),
					series(mf.GetName()+"_sum", labels, hist.GetSampleSum(), ts),
					series(mf.GetName()+"_count", labels, float64(hist.GetSampleCount()), ts),
				)
			}
		}
	}

	return samples
}

func series(name string, labels []prompb.Label, value float64, ts int64) prompb.TimeSeries {
	all := append(append([]prompb.Label{}, labels...), prompb.Label{Name: "__name__", Value: name})
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return prompb.TimeSeries{
		Labels:  all,
		Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
	}
}

func groupByTenant(samples []prompb.TimeSeries) map[string][]prompb.TimeSeries {
	byTenant := make(map[string][]prompb.TimeSeries)
	for _, ts := range samples {
		for _, label := range ts.Labels {
			if label.Name == "tenant_id" {
				byTenant[label.Value] = append(byTenant[label.Value], ts)
				break
			}
		}
	}
	return byTenant
}

func (c *Collector) push(ctx context.Context, tenantID string, timeseries []prompb.TimeSeries) error {
	req := &prompb.WriteRequest{
		Timeseries: timeseries,
	}

	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/api/v1/push", bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	httpReq.Header.Set(c.config.TenantHeader, tenantID)
	if c.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remote write failed with status %d", resp.StatusCode)
	}

	return nil
}
