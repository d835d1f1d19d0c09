package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Certificate probe failure kinds.
const (
	KindInvalidHostname = "invalid_hostname"
	KindDNS             = "dns"
	KindTLS             = "tls"
	KindTimeout         = "timeout"
	KindNetwork         = "network"
)

type CertError struct {
	Kind      string
	Host      string
	Message   string
	CheckedAt time.Time
}

func (e *CertError) Error() string {
	return e.Kind + ": " + e.Message
}

// CertResult is what a successful handshake tells us about the leaf.
type CertResult struct {
	Host            string    `json:"hostname"`
	ExpiresAt       time.Time `json:"expiry_date"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Issuer          string    `json:"issuer"`
	Subject         string    `json:"subject"`
	SerialNumber    string    `json:"serial_number"`
	CheckedAt       time.Time `json:"checked_at"`
}

// CertProber dials host:Port, completes a verified TLS handshake and reads
// the leaf certificate. RootCAs nil means the system pool.
type CertProber struct {
	Port     int
	RootCAs  *x509.CertPool
	Resolver *net.Resolver
	Now      func() time.Time
}

func NewCertProber() *CertProber {
	return &CertProber{Port: 443}
}

// NormalizeHost accepts a bare host or a URL and returns the host name with
// scheme, port and IPv6 brackets removed. It must contain a dot.
func NormalizeHost(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	if strings.HasPrefix(h, "http://") || strings.HasPrefix(h, "https://") {
		if u, err := url.Parse(h); err == nil {
			if u.Host != "" {
				h = u.Host
			} else {
				h = u.Path
			}
		}
	}
	h = strings.TrimSpace(h)
	if strings.HasPrefix(h, "[") {
		if i := strings.Index(h, "]"); i > 0 {
			h = h[1:i]
		}
	} else if i := strings.Index(h, ":"); i >= 0 {
		h = h[:i]
	}
	if i := strings.Index(h, "/"); i >= 0 {
		h = h[:i]
	}
	if !strings.Contains(h, ".") {
		return h, fmt.Errorf("invalid hostname: %q is not a valid domain, use a form like example.com", h)
	}
	return h, nil
}

func (p *CertProber) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Probe returns *CertError for every failure.
func (p *CertProber) Probe(ctx context.Context, host string, timeout time.Duration) (CertResult, error) {
	name, err := NormalizeHost(host)
	if err != nil {
		return CertResult{}, &CertError{Kind: KindInvalidHostname, Host: host, Message: err.Error(), CheckedAt: p.now()}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	fail := func(kind, msg string) (CertResult, error) {
		return CertResult{}, &CertError{Kind: kind, Host: name, Message: msg, CheckedAt: p.now()}
	}

	dns := Resolve(ctx, p.Resolver, name)
	if dns.Class != DNSResolves {
		if ctx.Err() != nil {
			return fail(KindTimeout, "connection timeout")
		}
		return fail(KindDNS, "DNS Error: "+dns.Class+" "+dns.ResolverError)
	}

	port := p.Port
	if port == 0 {
		port = 443
	}
	d := &tls.Dialer{Config: &tls.Config{
		ServerName: name,
		RootCAs:    p.RootCAs,
		MinVersion: tls.VersionTLS12,
	}}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(dns.IPs[0].String(), strconv.Itoa(port)))
	if err != nil {
		kind, msg := classifyDialError(ctx, err)
		return fail(kind, msg)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fail(KindTLS, "SSL Error: no peer certificate")
	}
	leaf := state.PeerCertificates[0]
	checked := p.now()

	return CertResult{
		Host:            name,
		ExpiresAt:       leaf.NotAfter.UTC(),
		DaysUntilExpiry: DaysUntil(leaf.NotAfter, checked),
		Issuer:          firstOr(leaf.Issuer.Organization, "Unknown"),
		Subject:         orDefault(leaf.Subject.CommonName, "Unknown"),
		SerialNumber:    leaf.SerialNumber.String(),
		CheckedAt:       checked,
	}, nil
}

// DaysUntil floors to whole days, so an expiry 12h in the past is -1.
func DaysUntil(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

func classifyDialError(ctx context.Context, err error) (string, string) {
	var (
		verr  *tls.CertificateVerificationError
		hostE x509.HostnameError
		authE x509.UnknownAuthorityError
		invE  x509.CertificateInvalidError
		recE  tls.RecordHeaderError
		alert tls.AlertError
		dnsE  *net.DNSError
		netE  net.Error
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &hostE), errors.As(err, &authE),
		errors.As(err, &invE), errors.As(err, &recE), errors.As(err, &alert):
		return KindTLS, "SSL Error: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return KindTimeout, "connection timeout"
	case errors.As(err, &dnsE):
		return KindDNS, "DNS Error: " + err.Error()
	case errors.As(err, &netE) && netE.Timeout():
		return KindTimeout, "connection timeout"
	default:
		return KindNetwork, err.Error()
	}
}

func firstOr(v []string, def string) string {
	if len(v) == 0 || v[0] == "" {
		return def
	}
	return v[0]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
