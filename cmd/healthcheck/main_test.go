package main

import "testing"

func TestProbeURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"", "http://localhost:8080/healthz"},
		{":8080", "http://localhost:8080/healthz"},
		{"0.0.0.0:9000", "http://localhost:9000/healthz"},
		{"127.0.0.1:8081", "http://127.0.0.1:8081/healthz"},
		{"9090", "http://localhost:9090/healthz"},
	}
	for _, tt := range tests {
		if got := probeURL(tt.addr); got != tt.want {
			t.Errorf("probeURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
