package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"fundportal/internal/config"
	"fundportal/internal/core"

	"golang.org/x/crypto/bcrypt"
)

func quickHash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(b), err
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{DataBackend: "postgres", DatabaseURL: "postgres://localhost/portal", AMQPQueue: "q"}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != PostgresBackend || got.DatabaseURL != cfg.DatabaseURL || got.AMQPQueue != "q" {
		t.Errorf("FromAppConfig = %+v", got)
	}

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	if err == nil || !strings.Contains(err.Error(), "must be one of [memory sqlite postgres]") {
		t.Errorf("unknown backend err = %v", err)
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected an error for a nil config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "portal.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackendIsSeeded(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, Hash: quickHash})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if res.Publisher != nil {
		t.Error("publisher set without AMQP_URL")
	}
	u, err := res.Store.GetUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("admin123")) != nil {
		t.Error("seeded admin password does not match")
	}
	works, err := res.Store.ListWorks(ctx)
	if err != nil || len(works) == 0 {
		t.Errorf("ListWorks = %d works, %v", len(works), err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "portal.db")
	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	created, err := res.Store.CreateMaster(ctx, core.MasterRecord{Kind: core.KindDistrict, Code: "BLR", Name: "Bengaluru Urban", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 {
		t.Error("CreateMaster returned no id")
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: PostgresBackend}); err == nil {
		t.Error("expected an error")
	}
}
