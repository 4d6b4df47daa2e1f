package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobwinther/auctionsite/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
database:
  host: "db.example.com"
  port: 5433
  user: "auctionsite"
  password: "secret"
  dbname: "auctions"
  sslmode: "require"
  driver: "sqlx"
server:
  port: 9090
telemetry:
  service_name: "auctionsite-prod"
  otlp_endpoint: "localhost:4318"
redis:
  addr: "localhost:6379"
notifications:
  retention: 168h
  cleanup_interval: 12h
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("got server port %d, want %d", cfg.Server.Port, 9090)
				}
				if cfg.Telemetry.ServiceName != "auctionsite-prod" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "auctionsite-prod")
				}
				if cfg.Redis.Addr != "localhost:6379" {
					t.Errorf("got redis addr %q, want %q", cfg.Redis.Addr, "localhost:6379")
				}
				if cfg.Notifications.CleanupInterval != 12*time.Hour {
					t.Errorf("got cleanup interval %s, want 12h", cfg.Notifications.CleanupInterval)
				}
			},
		},
		{
			name: "defaults applied",
			yaml: `
database:
  user: "auctionsite"
  dbname: "auctions"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Server.Port != 8080 {
					t.Errorf("got default server port %d, want 8080", cfg.Server.Port)
				}
				if cfg.Database.Driver != "sqlx" {
					t.Errorf("got default driver %q, want %q", cfg.Database.Driver, "sqlx")
				}
				if cfg.Database.SSLMode != "disable" {
					t.Errorf("got default sslmode %q, want %q", cfg.Database.SSLMode, "disable")
				}
				if cfg.Notifications.Retention != 7*24*time.Hour {
					t.Errorf("got default retention %s, want 168h", cfg.Notifications.Retention)
				}
				if cfg.Redis.Addr != "" {
					t.Errorf("expected redis disabled by default, got addr %q", cfg.Redis.Addr)
				}
			},
		},
		{
			name: "unsupported driver",
			yaml: `
database:
  driver: "mongo"
`,
			wantErr: true,
		},
		{
			name: "negative retention",
			yaml: `
notifications:
  retention: -1h
`,
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    `database: [`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatalf("writing config: %v", err)
			}

			cfg, err := config.Load(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && err == nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "auctions", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=auctions sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
