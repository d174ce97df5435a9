package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	seen := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if seen[version] == nil {
			seen[version] = map[string]bool{}
		}
		if seen[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		seen[version][direction] = true
	}

	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range seen {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestInitialMigrationCreatesCoreTables(t *testing.T) {
	script, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	schema := strings.ToLower(string(script))

	for _, table := range []string{
		"users",
		"works",
		"chapters",
		"segments",
		"history_records",
		"votes",
		"vote_comments",
		"reputations",
		"drafts",
	} {
		if !strings.Contains(schema, "create table "+table) &&
			!strings.Contains(schema, "create table if not exists "+table) {
			t.Errorf("init migration does not create table %q", table)
		}
	}
}
