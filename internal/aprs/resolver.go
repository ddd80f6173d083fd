package aprs

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// Resolver looks up APRS-IS server addresses. The public entry points are
// DNS round-robin pools (rotate.aprs2.net), so record sets are cached
// briefly and successive picks walk the pool. A reconnect after a server
// failure then lands on a different member instead of redialing whichever
// address the OS cached.
type Resolver struct {
	logger  zerolog.Logger
	servers []string
	client  *dns.Client
	cache   *expirable.LRU[string, []string]
	next    atomic.Uint64
}

// NewResolver builds a resolver backed by the nameservers in
// /etc/resolv.conf. Without any, lookups fall back to the stdlib resolver.
func NewResolver(logger zerolog.Logger) *Resolver {
	var servers []string
	if cc, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range cc.Servers {
			servers = append(servers, net.JoinHostPort(s, cc.Port))
		}
	}
	return &Resolver{
		logger:  logger.With().Str("component", "resolver").Logger(),
		servers: servers,
		client:  &dns.Client{Timeout: 5 * time.Second},
		cache:   expirable.NewLRU[string, []string](8, nil, time.Minute),
	}
}

// Pick resolves host and returns one address, rotating through the record
// set on successive calls. IP literals pass straight through.
func (r *Resolver) Pick(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	addrs, ok := r.cache.Get(host)
	if !ok {
		var err error
		addrs, err = r.lookup(ctx, host)
		if err != nil {
			return "", err
		}
		r.cache.Add(host, addrs)
		r.logger.Debug().Str("host", host).Strs("addrs", addrs).Msg("Resolved server pool")
	}

	n := r.next.Add(1)
	return addrs[int((n-1)%uint64(len(addrs)))], nil
}

func (r *Resolver) lookup(ctx context.Context, host string) ([]string, error) {
	if len(r.servers) == 0 {
		addrs, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no addresses for %s", host)
		}
		return addrs, nil
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	var lastErr error
	for _, srv := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, m, srv)
		if err != nil {
			lastErr = err
			continue
		}
		var addrs []string
		for _, rr := range in.Answer {
			if a, ok := rr.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
		lastErr = fmt.Errorf("no A records for %s", host)
	}
	return nil, lastErr
}
