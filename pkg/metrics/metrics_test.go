package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	reg := New()

	c := reg.Counter("jobs_total", "Jobs processed")
	c.Inc()
	c.Add(2)
	if c.Value() != 3 {
		t.Errorf("counter = %d", c.Value())
	}
	if reg.Counter("jobs_total", "") != c {
		t.Error("same name must return same counter")
	}

	g := reg.Gauge("queue_depth", "Queue depth")
	g.Set(5)
	g.Dec()
	if g.Value() != 4 {
		t.Errorf("gauge = %d", g.Value())
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("m", "path", "/x", "status", "200"); got != `m{path="/x",status="200"}` {
		t.Errorf("got %q", got)
	}
	if got := WithLabels("m"); got != "m" {
		t.Errorf("no labels: %q", got)
	}
	if got := WithLabels("m", "odd"); got != "m" {
		t.Errorf("odd pairs: %q", got)
	}
}

func TestRender(t *testing.T) {
	reg := New()
	reg.Counter(WithLabels("requests_total", "status", "200"), "Requests").Add(7)
	reg.Counter(WithLabels("requests_total", "status", "500"), "").Inc()
	reg.Gauge("up", "Service up").Set(1)

	out := reg.Render()
	for _, want := range []string{
		"# HELP requests_total Requests",
		"# TYPE requests_total counter",
		`requests_total{status="200"} 7`,
		`requests_total{status="500"} 1`,
		"# TYPE up gauge",
		"up 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHistogramRender(t *testing.T) {
	reg := New()
	h := reg.Histogram("latency_seconds", "Latency", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	out := reg.Render()
	for _, want := range []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 2`,
		`latency_seconds_bucket{le="10"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestLabeledHistogram(t *testing.T) {
	reg := New()
	reg.Histogram(WithLabels("op_seconds", "op", "embed"), "", []float64{1}).Observe(0.5)

	out := reg.Render()
	if !strings.Contains(out, `op_seconds_bucket{op="embed",le="1"} 1`) {
		t.Errorf("labeled bucket missing:\n%s", out)
	}
	if !strings.Contains(out, `op_seconds_count{op="embed"} 1`) {
		t.Errorf("labeled count missing:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	reg := New()
	reg.Counter("x_total", "").Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "x_total 1") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
