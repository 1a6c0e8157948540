package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/leozw/quota-guardian/internal/config"
)

type TLSChecker struct {
	roots *x509.CertPool
	now   func() time.Time
}

func NewTLSChecker() *TLSChecker {
	return &TLSChecker{now: time.Now}
}

// Check completes a TLS handshake with the target (host:port or https URL) and inspects
// the leaf certificate. A certificate closer to expiry than MinCertDays is degraded.
func (s *TLSChecker) Check(ctx context.Context, p config.ProbeConfig) Result {
	result := Result{Name: p.Name, Type: "tls"}

	host, port, err := splitTarget(p.Target)
	if err != nil {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("Invalid target: %v", err)
		return result
	}

	dialer := &tls.Dialer{Config: &tls.Config{
		ServerName: host,
		RootCAs:    s.roots,
		MinVersion: tls.VersionTLS12,
	}}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	result.ResponseTime = time.Since(start)

	if err != nil {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("TLS connection failed: %v", err)
		return result
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		result.Status = StatusDown
		result.Error = "No certificates found"
		return result
	}
	cert := certs[0]

	now := s.now()
	if now.Before(cert.NotBefore) {
		result.Status = StatusDown
		result.Error = "Certificate not yet valid"
		return result
	}
	if now.After(cert.NotAfter) {
		result.Status = StatusDown
		result.Error = "Certificate has expired"
		return result
	}

	daysUntilExpiry := int(cert.NotAfter.Sub(now).Hours() / 24)
	if p.MinCertDays > 0 && daysUntilExpiry < p.MinCertDays {
		result.Status = StatusDegraded
		result.Error = fmt.Sprintf("Certificate expires in %d days", daysUntilExpiry)
		return result
	}

	result.Status = StatusUp
	return result
}

func splitTarget(target string) (string, string, error) {
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", "", err
		}
		port := u.Port()
		if port == "" {
			port = "443"
		}
		return u.Hostname(), port, nil
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		// sem porta
		return target, "443", nil
	}
	return host, port, nil
}
