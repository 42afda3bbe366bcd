package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
global:
  data_path: /tmp/data
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: plex-token
    plex_sections: ["Anime"]
    anilist_token: anilist-token
`

func TestLoadValidYAML(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Global.DataPath != "/tmp/data" {
		t.Errorf("DataPath = %q", cfg.Global.DataPath)
	}
	profile, ok := cfg.Profiles["alice"]
	if !ok {
		t.Fatal("expected profile alice to be present")
	}
	if profile.ScanIntervalSeconds != 3600 {
		t.Errorf("ScanIntervalSeconds = %d, want default 3600", profile.ScanIntervalSeconds)
	}
	if profile.FuzzyThreshold != 90 {
		t.Errorf("FuzzyThreshold = %d, want default 90", profile.FuzzyThreshold)
	}
}

func TestLoadValidTOML(t *testing.T) {
	toml := `
[global]
data_path = "/tmp/data"

[profiles.alice]
plex_url = "http://localhost:32400"
plex_token = "plex-token"
plex_sections = ["Anime"]
anilist_token = "anilist-token"
`
	path := writeTempConfig(t, "config.toml", toml)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
}

func TestLoadValidJSON(t *testing.T) {
	json := `{
		"global": {"data_path": "/tmp/data"},
		"profiles": {
			"alice": {
				"plex_url": "http://localhost:32400",
				"plex_token": "plex-token",
				"plex_sections": ["Anime"],
				"anilist_token": "anilist-token"
			}
		}
	}`
	path := writeTempConfig(t, "config.json", json)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeTempConfig(t, "config.ini", "nonsense")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unrecognized extension")
	}
}

func TestLoadRejectsMissingDataPath(t *testing.T) {
	yaml := `
global: {}
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: t
    plex_sections: ["Anime"]
    anilist_token: a
`
	path := writeTempConfig(t, "config.yaml", yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing global.data_path")
	}
}

func TestLoadRejectsNoProfiles(t *testing.T) {
	yaml := `
global:
  data_path: /tmp/data
profiles: {}
`
	path := writeTempConfig(t, "config.yaml", yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error when no profiles are configured")
	}
}

func TestLoadRejectsDuplicateAniListTokens(t *testing.T) {
	yaml := `
global:
  data_path: /tmp/data
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: t1
    plex_sections: ["Anime"]
    anilist_token: shared-token
  bob:
    plex_url: http://localhost:32401
    plex_token: t2
    plex_sections: ["Anime"]
    anilist_token: shared-token
`
	path := writeTempConfig(t, "config.yaml", yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for two profiles sharing one AniList token")
	}
}

func TestLoadRejectsInvalidSyncInterval(t *testing.T) {
	yaml := `
global:
  data_path: /tmp/data
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: t
    plex_sections: ["Anime"]
    anilist_token: a
    sync_interval: 10
`
	path := writeTempConfig(t, "config.yaml", yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for sync_interval below the 60s floor")
	}
}

func TestLoadAllowsSyncIntervalOfNegativeOneForManualOnly(t *testing.T) {
	yaml := `
global:
  data_path: /tmp/data
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: t
    plex_sections: ["Anime"]
    anilist_token: a
    sync_interval: -1
`
	path := writeTempConfig(t, "config.yaml", yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profiles["alice"].ScanIntervalSeconds != -1 {
		t.Errorf("ScanIntervalSeconds = %d, want -1", cfg.Profiles["alice"].ScanIntervalSeconds)
	}
}

func TestLoadRejectsInvalidFuzzyThreshold(t *testing.T) {
	yaml := `
global:
  data_path: /tmp/data
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: t
    plex_sections: ["Anime"]
    anilist_token: a
    fuzzy_search_threshold: 150
`
	path := writeTempConfig(t, "config.yaml", yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for fuzzy_search_threshold above 100")
	}
}

func TestLoadRejectsUnknownSyncMode(t *testing.T) {
	yaml := `
global:
  data_path: /tmp/data
profiles:
  alice:
    plex_url: http://localhost:32400
    plex_token: t
    plex_sections: ["Anime"]
    anilist_token: a
    sync_modes: ["carrier-pigeon"]
`
	path := writeTempConfig(t, "config.yaml", yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for an unrecognized sync mode")
	}
}

func TestBackupRetentionAndDBSyncIntervalDurations(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackupRetention().Hours() != 7*24 {
		t.Errorf("BackupRetention() = %v, want 168h (default 7 days)", cfg.BackupRetention())
	}
	if cfg.DBSyncInterval().Hours() != 24 {
		t.Errorf("DBSyncInterval() = %v, want 24h default", cfg.DBSyncInterval())
	}
}
