package oxia

import (
	"context"
	"strings"
	"testing"
)

// Tests that talk to a real Oxia server are in integration_test.go and run
// with: go test -tags=integration ./internal/metadata/oxia/

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "empty service address",
			cfg:     Config{Namespace: "default"},
			wantErr: "service address is required",
		},
		{
			name:    "empty namespace",
			cfg:     Config{ServiceAddress: "localhost:6648"},
			wantErr: "namespace is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("localhost:6648", "default")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.SessionTimeout != DefaultSessionTimeout {
		t.Errorf("SessionTimeout = %v, want %v", cfg.SessionTimeout, DefaultSessionTimeout)
	}
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", ""},
		{"a", "b"},
		{"abc", "abd"},
		{"/moq/v1/cluster", "/moq/v1/clustes"},
		{string([]byte{0xFF}), ""},
		{string([]byte{0xFF, 0xFF}), ""},
		{string([]byte{0x00, 0xFF}), string([]byte{0x01})},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if got := prefixEnd(tt.prefix); got != tt.want {
				t.Errorf("prefixEnd(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestListEnd(t *testing.T) {
	if got := listEnd("/moq/v1/cluster/c1/nodes/"); got != "/moq/v1/cluster/c1/nodes//" {
		t.Errorf("hierarchical prefix: got %q", got)
	}
	if got := listEnd("/moq/v1/cluster/c1/nod"); got != "/moq/v1/cluster/c1/noe" {
		t.Errorf("plain prefix: got %q", got)
	}
}

func TestVersionConversion(t *testing.T) {
	for _, v := range []int64{0, 1, 41} {
		if got := metadataToOxiaVersion(oxiaToMetadataVersion(v)); got != v {
			t.Errorf("round trip of %d gave %d", v, got)
		}
	}
	if oxiaToMetadataVersion(0) != 1 {
		t.Error("first Oxia version should map to 1")
	}
}
