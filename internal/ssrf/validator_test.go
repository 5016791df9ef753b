package ssrf

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsBadScheme(t *testing.T) {
	v := New(false)
	err := v.Validate(context.Background(), "ftp://example.com/cb")
	require.Error(t, err)
	se, ok := As(err)
	require.True(t, ok)
	require.Contains(t, se.Reason, "scheme")
}

func TestValidateRejectsMissingHost(t *testing.T) {
	v := New(false)
	err := v.Validate(context.Background(), "http:///cb")
	require.Error(t, err)
}

func TestValidateRejectsPrivateLoopback(t *testing.T) {
	v := New(false)
	err := v.Validate(context.Background(), "http://127.0.0.1:9999/cb")
	require.Error(t, err)
	se, ok := As(err)
	require.True(t, ok)
	require.Contains(t, se.Reason, "private")
}

func TestValidateAllowsPrivateWhenConfigured(t *testing.T) {
	v := New(true)
	err := v.Validate(context.Background(), "http://127.0.0.1:9999/cb")
	require.NoError(t, err)
}

func TestValidateRejectsUnresolvableHost(t *testing.T) {
	v := New(false)
	err := v.Validate(context.Background(), "http://this-host-should-not-resolve.invalid/cb")
	require.Error(t, err)
}

func TestIsPrivateCoversAllDocumentedRanges(t *testing.T) {
	cases := []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1",
		"169.254.1.1", "0.0.0.1", "::1", "fc00::1", "fe80::1",
	}
	for _, c := range cases {
		ip := net.ParseIP(c)
		require.NotNil(t, ip, "could not parse %s as IP", c)
		if !isPrivate(ip) {
			t.Errorf("expected %s to be classified private", c)
		}
	}
}
