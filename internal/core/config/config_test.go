package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("GEOSERVER_URL", "")
	t.Setenv("H3_RES", "")

	cfg := FromEnv()
	if cfg.Addr != ":8090" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.H3Res != 8 {
		t.Fatalf("H3Res=%d want 8", cfg.H3Res)
	}
	if cfg.WMSVersion != "1.1.1" {
		t.Fatalf("WMSVersion=%q", cfg.WMSVersion)
	}
	if cfg.DefaultSourceSRID != 0 {
		t.Fatalf("DefaultSourceSRID=%d want 0 (no silent assumption)", cfg.DefaultSourceSRID)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("GEOSERVER_URL", "https://maps.example.org/geoserver/")
	t.Setenv("H3_RES", "42")
	t.Setenv("WMS_TIMEOUT", "5s")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")

	cfg := FromEnv()
	if cfg.GeoServerURL != "https://maps.example.org/geoserver" {
		t.Fatalf("GeoServerURL=%q (trailing slash must be trimmed)", cfg.GeoServerURL)
	}
	if cfg.H3Res != 0 {
		t.Fatalf("out of range H3_RES must disable tagging, got %d", cfg.H3Res)
	}
	if cfg.WMSTimeout != 5*time.Second {
		t.Fatalf("WMSTimeout=%s", cfg.WMSTimeout)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("Database.Driver=%q", cfg.Database.Driver)
	}
	if !cfg.Events.Enabled {
		t.Fatalf("events must be enabled")
	}
	got := cfg.Events.BrokerList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("BrokerList=%v", got)
	}
}
