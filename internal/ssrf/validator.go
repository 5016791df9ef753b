// Package ssrf implements C3: callback URL validation against server-side
// request forgery. Grounded on the teacher's internal/validator package
// (same role — reject bad input before it's acted on, return a typed error
// carrying a short reason) but the checks themselves come from
// original_source/src/app/callback.py's validate_callback_url /
// _is_private_ip, ported to net.Resolver-based DNS resolution.
package ssrf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Error is returned for any rejected callback URL. The caller maps it to a
// 400 at acceptance time or to a terminal delivery failure mid-pipeline.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return e.Reason }

func reject(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// disallowedRanges is the private/loopback/link-local block list from spec
// §4.3 rule 3. Checked against every address a hostname resolves to.
var disallowedRanges = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("ssrf: invalid CIDR literal %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

func isPrivate(ip net.IP) bool {
	for _, n := range disallowedRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Validator resolves and checks callback URLs. It holds no cache: every call
// to Validate performs a fresh DNS lookup, which is the point — it defends
// against DNS rebinding between acceptance time and delivery time (spec
// §4.3, "the second is not a cache").
type Validator struct {
	AllowPrivate bool
	Resolver     *net.Resolver
}

// New returns a Validator using net.DefaultResolver unless overridden.
func New(allowPrivate bool) *Validator {
	return &Validator{AllowPrivate: allowPrivate, Resolver: net.DefaultResolver}
}

// Validate checks scheme, hostname presence, and (unless AllowPrivate) that
// every address the hostname resolves to is outside the private/loopback/
// link-local ranges. Returns *Error on rejection.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return reject("unparseable URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return reject("invalid scheme %q: only http/https allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return reject("no hostname in callback URL")
	}

	if v.AllowPrivate {
		return nil
	}

	resolver := v.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return reject("DNS resolution failed for %s: %v", host, err)
	}
	if len(addrs) == 0 {
		return reject("DNS resolution for %s returned no addresses", host)
	}

	for _, a := range addrs {
		ip := a.IP
		if ip == nil {
			// Unparseable address literal from resolution: treat as private.
			return reject("callback URL resolved to an unparseable address")
		}
		if isPrivate(ip) {
			return reject("callback URL resolves to private address %s; set CONSUMA_ALLOW_PRIVATE_CALLBACKS=true for local testing", ip)
		}
	}
	return nil
}

// As reports whether err is an *Error, mirroring errors.As for callers that
// only care about the boolean.
func As(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}
