package guard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const httpBLZone = "dnsbl.httpbl.org"

// visitor type bits of an http:BL answer
const (
	httpBLSuspicious = 1
	httpBLHarvester  = 2
	httpBLSpammer    = 4
)

// Resolver is the part of net.Resolver the honeypot check needs.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Honeypot checks source addresses against Project Honey Pot's http:BL.
// Only an explicit spammer answer rejects; every other outcome lets the
// post through.
type Honeypot struct {
	key      string
	resolver Resolver
	timeout  time.Duration
	log      *zap.Logger
}

func NewHoneypot(key string, resolver Resolver, timeout time.Duration, log *zap.Logger) *Honeypot {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Honeypot{key: key, resolver: resolver, timeout: timeout, log: log}
}

// Query returns the DNS name looked up for ip, or false when ip is not an
// IPv4 address.
func (h *Honeypot) Query(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return "", false
	}
	octets := strings.Split(parsed.To4().String(), ".")
	for i, j := 0, len(octets)-1; i < j; i, j = i+1, j-1 {
		octets[i], octets[j] = octets[j], octets[i]
	}
	return h.key + "." + strings.Join(octets, ".") + "." + httpBLZone, true
}

// Check looks up sourceAddress, which may be a comma separated
// X-Forwarded-For value; the first entry is the client.
func (h *Honeypot) Check(ctx context.Context, sourceAddress string) error {
	if h == nil || h.key == "" || sourceAddress == "" {
		return nil
	}
	ip, _, _ := strings.Cut(sourceAddress, ",")
	ip = strings.TrimSpace(ip)
	name, ok := h.Query(ip)
	if !ok {
		h.log.Debug("skipping http:BL check", zap.String("ip", ip))
		return nil
	}
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	addrs, err := h.resolver.LookupHost(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil
		}
		h.log.Warn("error checking http:BL", zap.String("ip", ip), zap.Error(err))
		return nil
	}
	if len(addrs) == 0 {
		return nil
	}
	answer, err := parseAnswer(addrs[0])
	if err != nil || answer[0] != 127 {
		h.log.Warn("invalid http:BL reply", zap.String("ip", ip), zap.Strings("reply", addrs))
		return nil
	}
	if answer[3]&httpBLSpammer != 0 {
		h.log.Info("http:BL rejected address",
			zap.String("ip", ip),
			zap.Int("days", answer[1]),
			zap.Int("threat", answer[2]),
			zap.Int("type", answer[3]))
		return fmt.Errorf("%w: %s is a known spammer", ErrAbuse, ip)
	}
	if answer[3]&(httpBLSuspicious|httpBLHarvester) != 0 {
		h.log.Info("http:BL lists address as suspicious", zap.String("ip", ip), zap.Int("type", answer[3]))
	}
	return nil
}

func parseAnswer(addr string) ([4]int, error) {
	var answer [4]int
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return answer, fmt.Errorf("answer %q is not an IPv4 address", addr)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return answer, err
		}
		answer[i] = n
	}
	return answer, nil
}
