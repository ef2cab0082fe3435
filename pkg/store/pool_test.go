package store

import (
	"context"
	"testing"
	"time"

	"github.com/quantumlayerhq/sbom-enrich/pkg/config"
)

func TestNewPoolConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.DatabaseConfig
		shouldErr bool
	}{
		{
			name:      "empty URL should fail",
			cfg:       config.DatabaseConfig{URL: "", MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour},
			shouldErr: true,
		},
		{
			name:      "invalid URL should fail",
			cfg:       config.DatabaseConfig{URL: "not-a-valid-url", MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			_, err := NewPool(ctx, tt.cfg)
			if tt.shouldErr && err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPoolCloseNil(t *testing.T) {
	p := &Pool{}
	p.Close() // must not panic
}

func TestQuoteIdentRejectsUnsafeNames(t *testing.T) {
	tests := []struct {
		name    string
		ident   string
		wantErr bool
	}{
		{"plain word", "Sbom", false},
		{"underscore prefix", "_internal", false},
		{"sql injection attempt", `Sbom"; DROP TABLE x; --`, true},
		{"space", "sbom table", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if tt.wantErr && r == nil {
					t.Error("expected panic, got none")
				}
				if !tt.wantErr && r != nil {
					t.Errorf("unexpected panic: %v", r)
				}
			}()
			quoteIdent(tt.ident)
		})
	}
}
