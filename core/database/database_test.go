package database

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	coreconfig "github.com/m3rciful/chartbot/core/config"
)

func testDBConfig() coreconfig.DatabaseConfig {
	return coreconfig.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "bot",
		Password: "p@ss word",
		Name:     "chartbot",
		SSLMode:  "disable",
	}
}

func TestDSN(t *testing.T) {
	want := "user=bot password=p@ss word host=db port=5432 dbname=chartbot sslmode=disable"
	if got := DSN(testDBConfig()); got != want {
		t.Fatalf("DSN = %q", got)
	}
}

func TestURLEscapesCredentials(t *testing.T) {
	want := "postgres://bot:p%40ss%20word@db:5432/chartbot?sslmode=disable"
	if got := URL(testDBConfig()); got != want {
		t.Fatalf("URL = %q", got)
	}
}

func TestMigrationFileSelection(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "0003_c.up.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files := listMigrationFiles(dir)
	if !reflect.DeepEqual(files, []string{"0001_a.up.sql", "0002_b.up.sql", "0003_c.up.sql"}) {
		t.Fatalf("files = %v", files)
	}
	if got := selectApplied(files, 1, 3); !reflect.DeepEqual(got, []string{"0002_b.up.sql", "0003_c.up.sql"}) {
		t.Fatalf("applied = %v", got)
	}
	if got := selectApplied(files, 3, 3); got != nil {
		t.Fatalf("no-op applied = %v", got)
	}
	if listMigrationFiles(filepath.Join(dir, "missing")) != nil {
		t.Fatalf("missing dir should list nothing")
	}
}

func TestParseVersion(t *testing.T) {
	if v := parseVersion("0042_chart_requests.up.sql"); v != 42 {
		t.Fatalf("version = %d", v)
	}
	if v := parseVersion("junk.sql"); v != 0 {
		t.Fatalf("version = %d", v)
	}
}
