package app

import (
	"errors"
	"testing"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8090", want: "http://127.0.0.1:8090"},
		{name: "bind all v4", in: "0.0.0.0:8090", want: "http://127.0.0.1:8090"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[::1]:9090", want: "http://[::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		addr        string
		allowRemote bool
		wantErr     bool
	}{
		{addr: "127.0.0.1:8090"},
		{addr: "localhost:8090"},
		{addr: "[::1]:8090"},
		{addr: "0.0.0.0:8090", wantErr: true},
		{addr: ":8090", wantErr: true},
		{addr: "192.168.1.10:8090", wantErr: true},
		{addr: "0.0.0.0:8090", allowRemote: true},
		{addr: "no-port", wantErr: true},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		cfg.Portal.Addr = tc.addr
		cfg.Portal.AllowRemote = tc.allowRemote

		err := ValidateSecurityConfig(cfg)
		if tc.wantErr {
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("addr=%q allowRemote=%v: expected ErrConfig, got %v", tc.addr, tc.allowRemote, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("addr=%q allowRemote=%v: unexpected error: %v", tc.addr, tc.allowRemote, err)
		}
	}
}

func TestInsecureTransport(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"http://localhost:8000":       false,
		"http://127.0.0.1:8000":       false,
		"https://qa.example.com":      false,
		"http://qa.example.com":       true,
		"http://[2001:db8::1]:8000/x": true,
	}
	for in, want := range cases {
		if got := insecureTransport(in); got != want {
			t.Fatalf("insecureTransport(%q)=%v want=%v", in, got, want)
		}
	}
}
