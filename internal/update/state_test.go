package update

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadState_NoFile(t *testing.T) {
	state, err := LoadState(t.TempDir())
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}
	if !state.LastCheckedAt.IsZero() {
		t.Errorf("expected zero LastCheckedAt, got %v", state.LastCheckedAt)
	}
	if state.LatestVersion != "" {
		t.Errorf("expected empty LatestVersion, got %q", state.LatestVersion)
	}
}

func TestSaveAndLoadState(t *testing.T) {
	dir := t.TempDir()

	now := time.Now().Truncate(time.Second)
	original := &State{
		LastCheckedAt:  now,
		LatestVersion:  "1.2.3",
		CurrentVersion: "1.0.0",
	}

	if err := SaveState(dir, original); err != nil {
		t.Fatalf("SaveState returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, stateFileName)); os.IsNotExist(err) {
		t.Fatal("state file was not created")
	}

	loaded, err := LoadState(dir)
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}

	if !loaded.LastCheckedAt.Equal(original.LastCheckedAt) {
		t.Errorf("LastCheckedAt = %v, want %v", loaded.LastCheckedAt, original.LastCheckedAt)
	}
	if loaded.LatestVersion != original.LatestVersion {
		t.Errorf("LatestVersion = %q, want %q", loaded.LatestVersion, original.LatestVersion)
	}
	if loaded.CurrentVersion != original.CurrentVersion {
		t.Errorf("CurrentVersion = %q, want %q", loaded.CurrentVersion, original.CurrentVersion)
	}
}

func TestLoadState_Corrupt(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte("not json"), 0o600); err != nil {
		t.Fatalf("write corrupt state: %v", err)
	}

	state, err := LoadState(dir)
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}
	if state.LatestVersion != "" {
		t.Errorf("corrupt state should load as empty, got %+v", state)
	}
}

func TestState_ShouldCheck(t *testing.T) {
	tests := []struct {
		name string
		last time.Time
		want bool
	}{
		{name: "never checked", want: true},
		{name: "checked just now", last: time.Now(), want: false},
		{name: "checked yesterday", last: time.Now().Add(-25 * time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{LastCheckedAt: tt.last}
			if got := s.ShouldCheck(); got != tt.want {
				t.Errorf("ShouldCheck() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_HasUpdate(t *testing.T) {
	tests := []struct {
		name    string
		latest  string
		current string
		want    bool
	}{
		{name: "newer available", latest: "1.2.3", current: "1.2.2", want: true},
		{name: "same version", latest: "1.2.3", current: "1.2.3", want: false},
		{name: "current newer", latest: "1.2.3", current: "1.3.0", want: false},
		{name: "no latest cached", latest: "", current: "1.0.0", want: false},
		{name: "unparseable current", latest: "1.2.3", current: "dev", want: false},
		{name: "unparseable latest", latest: "latest", current: "1.0.0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{LatestVersion: tt.latest}
			if got := s.HasUpdate(tt.current); got != tt.want {
				t.Errorf("HasUpdate(%q) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}
