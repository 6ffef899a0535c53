package bridge

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestValidateBroker(t *testing.T) {
	var tests = []struct {
		broker string
		valid  bool
	}{
		{"", false},
		{"localhost", true},
		{"localhost:1883", true},
		{"tcp://localhost:1883", true},
		{"ssl://broker.example.com:8883", true},
		{"tls://broker.example.com:8883", true},
		{"mqtt://broker.example.com", true},
		{"mqtts://broker.example.com", true},
		{"ws://broker.example.com/mqtt", true},
		{"wss://broker.example.com/mqtt", true},
		{"unix:///var/run/mosquitto.sock", true},
		{"unix://", false},
		{"http://broker.example.com", false},
		{"tcp://", false},
		{"://localhost", false},
	}
	for _, tt := range tests {
		err := validateBroker(tt.broker)
		if tt.valid && err != nil {
			t.Errorf("%q: Wanted no error, got %v", tt.broker, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidParams) {
			t.Errorf("%q: Wanted ErrInvalidParams, got %v", tt.broker, err)
		}
	}
}

func TestClassifyConnectErr(t *testing.T) {
	if err := classifyConnectErr(nil); err != nil {
		t.Errorf("nil: Wanted nil, got %v", err)
	}

	dnsErr := fmt.Errorf("connect: %w", &net.DNSError{
		Err:  "no such host",
		Name: "broker.invalid",
	})
	if err := classifyConnectErr(dnsErr); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("dns failure: Wanted ErrInvalidParams, got %v", err)
	}

	plain := errors.New("connection refused")
	if err := classifyConnectErr(plain); !errors.Is(err, plain) || errors.Is(err, ErrInvalidParams) {
		t.Errorf("plain failure: Wanted error passed through, got %v", err)
	}
}
