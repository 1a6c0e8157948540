package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"

	"github.com/leozw/quota-guardian/internal/config"
)

type DNSChecker struct {
	client *dns.Client
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{client: new(dns.Client)}
}

// Check resolves the target against the configured resolver. The probe is up when the
// answer section holds at least one record of the requested type.
func (d *DNSChecker) Check(ctx context.Context, p config.ProbeConfig) Result {
	result := Result{Name: p.Name, Type: "dns"}

	recordType := p.RecordType
	if recordType == "" {
		recordType = "A"
	}
	qtype, ok := dns.StringToType[recordType]
	if !ok {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("Unknown record type %s", recordType)
		return result
	}

	resolver := p.Resolver
	if resolver == "" {
		resolver = "8.8.8.8:53"
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(p.Target), qtype)

	start := time.Now()
	r, _, err := d.client.ExchangeContext(ctx, m, resolver)
	result.ResponseTime = time.Since(start)

	if err != nil {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("DNS query failed: %v", err)
		return result
	}

	if r.Rcode != dns.RcodeSuccess {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("DNS query failed with code: %s", dns.RcodeToString[r.Rcode])
		return result
	}

	answers := 0
	for _, ans := range r.Answer {
		if ans.Header().Rrtype == qtype {
			answers++
		}
	}
	if answers == 0 {
		result.Status = StatusDown
		result.Error = fmt.Sprintf("No %s records found", recordType)
		return result
	}

	result.Status = StatusUp
	return result
}
