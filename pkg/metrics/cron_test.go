package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "payout-run"
	started := time.Now().Add(-250 * time.Millisecond)
	metrics.Observe(job, started, nil)
	metrics.Observe(job, started, errors.New("rail down"))
	metrics.Observe(job, started, errors.New("rail down"))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "luzimarket_cron_job_runs_total", "outcome", outcomeSuccess); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "luzimarket_cron_job_runs_total", "outcome", outcomeFailure); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 2 {
		t.Fatalf("expected failure=2, got %f", got)
	}
	duration, err := metricWithLabel(mfs, "luzimarket_cron_job_duration_seconds", "job", job)
	if err != nil {
		t.Fatalf("fetch duration: %v", err)
	}
	if sum := duration.GetHistogram().GetSampleSum(); sum < 0.75 {
		t.Fatalf("expected duration sum >= 0.75s, got %f", sum)
	}

	last, err := metricWithLabel(mfs, "luzimarket_cron_job_last_success_timestamp_seconds", "job", job)
	if err != nil {
		t.Fatalf("fetch last success: %v", err)
	}
	if ts := last.GetGauge().GetValue(); ts < float64(started.Unix()) {
		t.Fatalf("last success %f predates run start", ts)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var metrics *CronJobMetrics
	metrics.Observe("job", time.Now(), nil)

	unregistered := NewCronJobMetrics(nil)
	unregistered.Observe("", time.Now(), errors.New("boom"))
}
