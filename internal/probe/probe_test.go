package probe

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/quota-guardian/internal/config"
)

type fakeRecorder struct {
	mu  sync.Mutex
	ups map[string]bool
}

func (f *fakeRecorder) RecordProbe(name, probeType string, up bool, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ups == nil {
		f.ups = map[string]bool{}
	}
	f.ups[name] = up
}

func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			switch r.Question[0].Name {
			case "ok.test.":
				rr, _ := dns.NewRR("ok.test. 60 IN A 10.0.0.1")
				m.Answer = append(m.Answer, rr)
			case "empty.test.":
			default:
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewHTTPChecker()
	ctx := context.Background()

	res := checker.Check(ctx, config.ProbeConfig{Name: "api", Target: srv.URL + "/health"})
	assert.Equal(t, StatusUp, res.Status)
	assert.Empty(t, res.Error)

	res = checker.Check(ctx, config.ProbeConfig{Name: "api", Target: srv.URL + "/broken"})
	assert.Equal(t, StatusDown, res.Status)
	assert.Contains(t, res.Error, "503")
}

func TestHTTPChecker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := NewHTTPChecker().Check(ctx, config.ProbeConfig{Name: "slow", Target: srv.URL})
	assert.Equal(t, StatusDown, res.Status)
	assert.Contains(t, res.Error, "Request failed")
}

func TestDNSChecker(t *testing.T) {
	addr := startDNSServer(t)
	checker := NewDNSChecker()
	ctx := context.Background()

	res := checker.Check(ctx, config.ProbeConfig{Name: "ns", Target: "ok.test", Resolver: addr})
	assert.Equal(t, StatusUp, res.Status, res.Error)

	res = checker.Check(ctx, config.ProbeConfig{Name: "ns", Target: "missing.test", Resolver: addr})
	assert.Equal(t, StatusDown, res.Status)
	assert.Contains(t, res.Error, "NXDOMAIN")

	res = checker.Check(ctx, config.ProbeConfig{Name: "ns", Target: "empty.test", Resolver: addr})
	assert.Equal(t, StatusDown, res.Status)
	assert.Equal(t, "No A records found", res.Error)

	res = checker.Check(ctx, config.ProbeConfig{Name: "ns", Target: "ok.test", Resolver: addr, RecordType: "BOGUS"})
	assert.Equal(t, StatusDown, res.Status)
}

func TestHealthScore(t *testing.T) {
	probes := []config.ProbeConfig{
		{Name: "api", Weight: 3},
		{Name: "db", Weight: 1},
	}

	assert.Equal(t, 100.0, HealthScore([]Result{{Name: "api", Status: StatusUp}, {Name: "db", Status: StatusUp}}, probes))
	assert.Equal(t, 75.0, HealthScore([]Result{{Name: "api", Status: StatusUp}, {Name: "db", Status: StatusDown}}, probes))
	assert.Equal(t, 25.0, HealthScore([]Result{{Name: "api", Status: StatusDown}, {Name: "db", Status: StatusUp}}, probes))
	assert.Equal(t, 0.0, HealthScore([]Result{{Name: "api", Status: StatusDown}, {Name: "db", Status: StatusDown}}, probes))
	assert.Equal(t, 100.0, HealthScore(nil, nil))
}

func TestRunner_Run(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()
	dnsAddr := startDNSServer(t)

	probes := []config.ProbeConfig{
		{Name: "api", Type: "http", Target: up.URL, Timeout: time.Second, Weight: 2},
		{Name: "resolver", Type: "dns", Target: "missing.test", Resolver: dnsAddr, Timeout: time.Second, Weight: 2},
		{Name: "ping", Type: "icmp", Target: "10.0.0.1", Weight: 1},
	}
	rec := &fakeRecorder{}
	runner := NewRunner(probes, rec, zap.NewNop())

	source := runner.Run(context.Background())

	require.Len(t, source.Probes, 3)
	assert.Equal(t, "api", source.Probes[0].Name)
	assert.Equal(t, StatusUp, source.Probes[0].Status)
	assert.Equal(t, StatusDown, source.Probes[1].Status)
	assert.Contains(t, source.Probes[2].Error, "unsupported")

	require.NotNil(t, source.Score)
	assert.InDelta(t, 40.0, *source.Score, 1e-9)
	require.NotNil(t, source.UptimePercentage)
	assert.InDelta(t, 100.0/3, *source.UptimePercentage, 1e-9)
	assert.Nil(t, source.PreviousUptime)

	assert.Equal(t, map[string]bool{"api": true, "resolver": false, "ping": false}, rec.ups)

	second := runner.Run(context.Background())
	require.NotNil(t, second.PreviousUptime)
	assert.InDelta(t, 100.0/3, *second.PreviousUptime, 1e-9)
}

func TestRunner_NoProbes(t *testing.T) {
	source := NewRunner(nil, nil, zap.NewNop()).Run(context.Background())
	assert.Empty(t, source.Probes)
	assert.Nil(t, source.Score)
	assert.Nil(t, source.UptimePercentage)
}

func TestTLSChecker(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	checker := NewTLSChecker()
	checker.roots = pool

	ctx := context.Background()

	res := checker.Check(ctx, config.ProbeConfig{Name: "cert", Target: srv.URL})
	assert.Equal(t, StatusUp, res.Status, res.Error)

	// expires well before this many days
	res = checker.Check(ctx, config.ProbeConfig{Name: "cert", Target: srv.URL, MinCertDays: 1_000_000})
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Error, "Certificate expires in")

	checker.now = func() time.Time { return srv.Certificate().NotAfter.Add(time.Hour) }
	res = checker.Check(ctx, config.ProbeConfig{Name: "cert", Target: srv.URL})
	assert.Equal(t, StatusDown, res.Status)
	assert.Equal(t, "Certificate has expired", res.Error)
}

func TestTLSChecker_UntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	res := NewTLSChecker().Check(context.Background(), config.ProbeConfig{Name: "cert", Target: srv.URL})
	assert.Equal(t, StatusDown, res.Status)
	assert.Contains(t, res.Error, "TLS connection failed")
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		target, host, port string
	}{
		{"https://api.example.com/health", "api.example.com", "443"},
		{"https://api.example.com:8443", "api.example.com", "8443"},
		{"api.example.com:993", "api.example.com", "993"},
		{"api.example.com", "api.example.com", "443"},
	}
	for _, tt := range tests {
		host, port, err := splitTarget(tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.host, host, tt.target)
		assert.Equal(t, tt.port, port, tt.target)
	}
}
