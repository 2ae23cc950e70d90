package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/melodyhue/internal/models"
	"github.com/desertthunder/melodyhue/internal/repositories"
	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/desertthunder/melodyhue/internal/tasks"
	tu "github.com/desertthunder/melodyhue/internal/testing"
)

var envOverrides = []string{
	"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REFRESH_TOKEN", "SPOTIFY_REDIRECT_URI",
	"SPOTIFY_TOKENS_FILE", "SPOTIFY_POLLING_INTERVAL", "SPOTIFY_REQUEST_INTERVAL", "SPOTIFY_SHOW_DIALOG",
	"VERBOSE_SPOTIFY_LOGS", "LOG_LEVEL", "DEFAULT_FALLBACK_COLOR",
}

// clearEnv blanks every override so the developer's shell cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envOverrides {
		t.Setenv(key, "")
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// testConfig has nothing that reaches the network or the working directory.
func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Persistence.Enabled = false
	config.Database.History = false
	config.Database.Path = filepath.Join(t.TempDir(), "history.db")
	return config
}

func writeConfig(t *testing.T, config *shared.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := shared.SaveConfig(path, config); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// offlineIntegration is disabled: it never polls and always reports the fallback.
func offlineIntegration(t *testing.T) *tasks.Integration {
	t.Helper()
	return tasks.New(testConfig(t), tasks.Options{Logger: quietLogger()})
}

func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	return r.app().Run(context.Background(), append([]string{"melodyhue"}, args...))
}

func newTestRunner(t *testing.T, opts RunnerOpts) (*Runner, *bytes.Buffer) {
	t.Helper()
	clearEnv(t)
	out := &bytes.Buffer{}
	opts.Output = out
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	r := NewRunner(opts)
	t.Cleanup(func() { r.Close() })
	return r, out
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			integration := offlineIntegration(t)

			runner := NewRunner(RunnerOpts{
				Config:      config,
				ConfigPath:  "/test/path/config.toml",
				Integration: integration,
				Logger:      logger,
				Output:      output,
				HTTPClient:  httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.integration != integration {
				t.Error("expected integration to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.openBrowser == nil {
				t.Error("expected a browser launcher")
			}
		})

		t.Run("SetLogger", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			logger := quietLogger()
			runner.SetLogger(logger)
			if runner.logger != logger {
				t.Error("expected logger to be replaced")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"color": "#25d865"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "{\n  \"color\": \"#25d865\"\n}\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]int{"plays": 2}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "{\"plays\":2}\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("Color: %s\n", "#25d865"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "Color: #25d865\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("writePlainln surrounds with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			runner.writePlainln("Done")
			if output.String() != "\nDone\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writePlain("x"); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "auth", "now", "watch", "preview", "history", "color"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			if cmd.Name != want[i] {
				t.Errorf("expected command %q at index %d, got %q", want[i], i, cmd.Name)
			}
		}
	})

	t.Run("load", func(t *testing.T) {
		t.Run("missing file keeps defaults", func(t *testing.T) {
			r, _ := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
			path := filepath.Join(t.TempDir(), "absent.toml")

			if err := run(t, r, "--config", path, "color", "show"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if r.configPath != path {
				t.Errorf("expected config path %s, got %s", path, r.configPath)
			}
			if r.config.Colors.Fallback != "#25d865" {
				t.Errorf("expected default fallback, got %s", r.config.Colors.Fallback)
			}
		})

		t.Run("environment overrides file", func(t *testing.T) {
			r, _ := newTestRunner(t, RunnerOpts{})
			path := writeConfig(t, testConfig(t))
			t.Setenv("DEFAULT_FALLBACK_COLOR", "#010203")

			if err := run(t, r, "--config", path, "color", "show"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if r.config.Colors.Fallback != "#010203" {
				t.Errorf("expected env fallback, got %s", r.config.Colors.Fallback)
			}
		})

		t.Run("invalid file fails", func(t *testing.T) {
			r, _ := newTestRunner(t, RunnerOpts{})
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte("[polling\n"), 0600)

			err := run(t, r, "--config", path, "color", "show")
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("invalid values fail validation", func(t *testing.T) {
			r, _ := newTestRunner(t, RunnerOpts{})
			config := testConfig(t)
			config.Colors.Clusters = 0
			path := writeConfig(t, config)

			err := run(t, r, "--config", path, "color", "show")
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("verbose flag", func(t *testing.T) {
			r, _ := newTestRunner(t, RunnerOpts{})
			path := writeConfig(t, testConfig(t))

			if err := run(t, r, "--config", path, "--verbose", "color", "show"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !r.config.Logging.Verbose {
				t.Error("expected verbose logging")
			}
		})
	})
}

func TestSetup(t *testing.T) {
	t.Run("config writes example file", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		path := filepath.Join(t.TempDir(), "nested", "config.toml")

		if err := run(t, r, "--config", path, "setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(out.String(), "Config written to "+path) {
			t.Errorf("unexpected output: %s", out.String())
		}

		if err := run(t, r, "--config", path, "setup", "config"); err == nil {
			t.Error("expected an error when the file already exists")
		}
	})

	t.Run("database runs migrations", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		config := testConfig(t)
		path := writeConfig(t, config)

		if err := run(t, r, "--config", path, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, config.Database.Path)
		if !strings.Contains(out.String(), "(0 plays recorded)") {
			t.Errorf("unexpected output: %s", out.String())
		}
	})

	t.Run("database rollback", func(t *testing.T) {
		config := testConfig(t)
		seedPlays(t, config.Database.Path, 1)
		path := writeConfig(t, config)

		r, out := newTestRunner(t, RunnerOpts{})
		if err := run(t, r, "--config", path, "setup", "database", "--rollback"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "Rolled back") {
			t.Errorf("unexpected output: %s", out.String())
		}

		if err := run(t, r, "--config", path, "setup", "database", "--rollback"); err == nil {
			t.Error("expected an error with nothing left to roll back")
		}
	})
}

func TestColor(t *testing.T) {
	t.Run("set creates config", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "color", "set", "AABBCC"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		saved, err := shared.LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if saved.Colors.Fallback != "#aabbcc" {
			t.Errorf("expected normalized #aabbcc, got %s", saved.Colors.Fallback)
		}
		if !strings.Contains(out.String(), "Fallback color set to #aabbcc") {
			t.Errorf("unexpected output: %s", out.String())
		}
	})

	t.Run("set keeps other settings", func(t *testing.T) {
		r, _ := newTestRunner(t, RunnerOpts{})
		config := testConfig(t)
		config.Spotify.ClientID = "keep-me"
		path := writeConfig(t, config)

		if err := run(t, r, "--config", path, "color", "set", "#112233"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		saved, _ := shared.LoadConfig(path)
		if saved.Spotify.ClientID != "keep-me" {
			t.Errorf("expected client id kept, got %q", saved.Spotify.ClientID)
		}
	})

	t.Run("set updates a live integration", func(t *testing.T) {
		integration := offlineIntegration(t)
		r, _ := newTestRunner(t, RunnerOpts{Integration: integration})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "color", "set", "#112233"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := integration.Fallback(); got != (models.RGB{R: 0x11, G: 0x22, B: 0x33}) {
			t.Errorf("expected fallback applied, got %v", got)
		}
	})

	t.Run("set rejects invalid colors", func(t *testing.T) {
		for _, bad := range []string{"#fff", "zzzzzz", "#1234567"} {
			r, _ := newTestRunner(t, RunnerOpts{})
			path := filepath.Join(t.TempDir(), "config.toml")

			err := run(t, r, "--config", path, "color", "set", bad)
			if !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", bad, err)
			}
			if _, statErr := os.Stat(path); statErr == nil {
				t.Errorf("%s: expected no config written", bad)
			}
		}
	})

	t.Run("set requires an argument", func(t *testing.T) {
		r, _ := newTestRunner(t, RunnerOpts{})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "color", "set"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("show prints the fallback", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		config := testConfig(t)
		config.Colors.Fallback = "#abcdef"
		path := writeConfig(t, config)

		if err := run(t, r, "--config", path, "color", "show"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "Fallback: #abcdef") {
			t.Errorf("unexpected output: %s", out.String())
		}
	})
}

func TestNow(t *testing.T) {
	t.Run("disabled integration shows fallback", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "now"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"not connected", "No music playing", "Color: #25d865"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("expected %q in output, got:\n%s", want, out.String())
			}
		}
	})

	t.Run("text with stats", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "now", "--stats"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "Requests:") {
			t.Errorf("expected counters, got:\n%s", out.String())
		}
	})

	t.Run("json with stats", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "now", "--format", "json", "--stats"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var got struct {
			NowPlaying map[string]any `json:"now_playing"`
			Stats      models.Stats   `json:"stats"`
		}
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out.String())
		}
		if got.NowPlaying["color"] != "#25d865" || got.NowPlaying["enabled"] != false {
			t.Errorf("unexpected now_playing: %v", got.NowPlaying)
		}
		if got.Stats.Requests != 1 {
			t.Errorf("expected one color request counted, got %d", got.Stats.Requests)
		}
	})

	t.Run("csv is rejected", func(t *testing.T) {
		r, _ := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "now", "--format", "csv"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWatch(t *testing.T) {
	t.Run("rejects tabular formats", func(t *testing.T) {
		r, _ := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "watch", "--format", "csv"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("reports stats write failure after shutdown", func(t *testing.T) {
		clearEnv(t)
		r := NewRunner(RunnerOpts{Integration: offlineIntegration(t), Logger: quietLogger(), Output: &tu.FWriter{}})
		t.Cleanup(func() { r.Close() })
		path := filepath.Join(t.TempDir(), "config.toml")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := r.app().Run(ctx, []string{"melodyhue", "--config", path, "watch"})
		if err == nil || !strings.Contains(err.Error(), "failed to write output") {
			t.Errorf("expected write error, got %v", err)
		}
	})

	t.Run("prints transitions", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		at := time.Date(2024, 3, 1, 18, 30, 0, 0, time.Local)
		track := &models.TrackSnapshot{TrackID: "t1", Name: "Song One", Artists: []string{"Artist One"}, IsPlaying: true}

		err := r.printTransition(context.Background(), r.integration, tasks.Transition{Kind: tasks.TrackChanged, Current: track, At: at}, "text")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.String() != "18:30:00  #25d865  Now playing: Artist One - Song One\n" {
			t.Errorf("unexpected output %q", out.String())
		}

		out.Reset()
		r.printTransition(context.Background(), r.integration, tasks.Transition{Kind: tasks.Stopped, Current: &models.TrackSnapshot{}, At: at}, "json")

		var event watchEvent
		if err := json.Unmarshal(out.Bytes(), &event); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		if event.Kind != "stopped" || event.Color != "#25d865" || event.Message != "Playback stopped" {
			t.Errorf("unexpected event: %+v", event)
		}
	})
}

func seedPlays(t *testing.T, dbPath string, n int) {
	t.Helper()
	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := repositories.NewPlayRepository(db)
	start := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	for i := range n {
		play := &models.Play{
			TrackID:   fmt.Sprintf("t%d", i+1),
			Name:      fmt.Sprintf("Song %d", i+1),
			Artist:    "Artist",
			ColorHex:  "#112233",
			StartedAt: start.Add(time.Duration(i) * 3 * time.Minute),
		}
		if err := repo.Create(play); err != nil {
			t.Fatalf("failed to seed play: %v", err)
		}
	}
}

func TestHistory(t *testing.T) {
	t.Run("lists newest first", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		config := testConfig(t)
		seedPlays(t, config.Database.Path, 3)
		path := writeConfig(t, config)

		if err := run(t, r, "--config", path, "history", "--limit", "2", "--format", "csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got:\n%s", out.String())
		}
		if !strings.Contains(lines[1], "Song 3") || !strings.Contains(lines[2], "Song 2") {
			t.Errorf("expected newest first, got:\n%s", out.String())
		}
	})

	t.Run("empty database", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		path := writeConfig(t, testConfig(t))

		if err := run(t, r, "--config", path, "history"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.String() != "No plays recorded yet.\n" {
			t.Errorf("unexpected output %q", out.String())
		}
	})

	t.Run("exports to file", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{})
		config := testConfig(t)
		seedPlays(t, config.Database.Path, 2)
		path := writeConfig(t, config)
		export := filepath.Join(t.TempDir(), "plays.md")

		if err := run(t, r, "--config", path, "history", "--format", "md", "--output", export); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, export)
		if !strings.Contains(tu.MustReadFile(t, export), "**Plays**: 2") {
			t.Error("expected markdown export")
		}
		if !strings.Contains(out.String(), "Exported 2 plays to "+export) {
			t.Errorf("unexpected output: %s", out.String())
		}
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		r, _ := newTestRunner(t, RunnerOpts{})
		path := writeConfig(t, testConfig(t))

		if err := run(t, r, "--config", path, "history", "--limit", "0"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestAuth(t *testing.T) {
	t.Run("login requires credentials", func(t *testing.T) {
		r, _ := newTestRunner(t, RunnerOpts{})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "auth", "login"); !errors.Is(err, shared.ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})

	t.Run("login saves the refresh token", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		srv.Respond("client_credentials", tu.TokenResponse{AccessToken: "app-token", ExpiresIn: 3600})
		srv.Respond("authorization_code", tu.TokenResponse{AccessToken: "user-token", RefreshToken: "rt-new", ExpiresIn: 3600})

		config := testConfig(t)
		config.Spotify.ClientID = "id"
		config.Spotify.ClientSecret = "secret"
		config.Spotify.TokenURL = srv.TokenURL()
		config.Spotify.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t))
		path := writeConfig(t, config)

		r, out := newTestRunner(t, RunnerOpts{})
		r.openBrowser = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			callback := config.Spotify.RedirectURI + "?code=abc&state=" + u.Query().Get("state")
			go func() {
				if resp, err := http.Get(callback); err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}

		if err := run(t, r, "--config", path, "auth", "login", "--timeout", "5s"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		saved, err := shared.LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if saved.Spotify.RefreshToken != "rt-new" {
			t.Errorf("expected rotated refresh token saved, got %q", saved.Spotify.RefreshToken)
		}
		if !r.integration.IsEnabled() {
			t.Error("expected integration enabled after login")
		}
		if !strings.Contains(out.String(), "Authorization successful") {
			t.Errorf("unexpected output: %s", out.String())
		}
		if form := srv.LastForm(); form.Get("code") != "abc" {
			t.Errorf("expected code exchanged, got %v", form)
		}
	})

	t.Run("login times out", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		srv.Respond("client_credentials", tu.TokenResponse{AccessToken: "app-token", ExpiresIn: 3600})

		config := testConfig(t)
		config.Spotify.ClientID = "id"
		config.Spotify.ClientSecret = "secret"
		config.Spotify.TokenURL = srv.TokenURL()
		config.Spotify.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", freePort(t))
		path := writeConfig(t, config)

		r, out := newTestRunner(t, RunnerOpts{})
		err := run(t, r, "--config", path, "auth", "login", "--no-browser", "--timeout", "100ms")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if !strings.Contains(out.String(), "client_id=id") {
			t.Errorf("expected consent URL printed, got: %s", out.String())
		}
	})

	t.Run("url", func(t *testing.T) {
		srv := tu.NewTokenServer(t)
		srv.Respond("client_credentials", tu.TokenResponse{AccessToken: "app-token", ExpiresIn: 3600})

		config := testConfig(t)
		config.Spotify.ClientID = "id"
		config.Spotify.ClientSecret = "secret"
		config.Spotify.TokenURL = srv.TokenURL()
		path := writeConfig(t, config)

		r, out := newTestRunner(t, RunnerOpts{})
		if err := run(t, r, "--config", path, "auth", "url"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"client_id=id", "state=", "show_dialog=false"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("expected %q in %s", want, out.String())
			}
		}
	})

	t.Run("status json", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "auth", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var status authStatus
		if err := json.Unmarshal(out.Bytes(), &status); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if status.Configured || status.Enabled || status.UserGrant {
			t.Errorf("expected nothing configured, got %+v", status)
		}
		if status.FallbackHex != "#25d865" {
			t.Errorf("expected default fallback, got %s", status.FallbackHex)
		}
	})

	t.Run("status text", func(t *testing.T) {
		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out.String(), "✗ missing") {
			t.Errorf("unexpected output: %s", out.String())
		}
	})

	t.Run("logout clears the saved refresh token", func(t *testing.T) {
		config := testConfig(t)
		config.Spotify.RefreshToken = "old-rt"
		path := writeConfig(t, config)

		r, out := newTestRunner(t, RunnerOpts{Integration: offlineIntegration(t)})
		if err := run(t, r, "--config", path, "auth", "logout"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		saved, _ := shared.LoadConfig(path)
		if saved.Spotify.RefreshToken != "" {
			t.Errorf("expected refresh token cleared, got %q", saved.Spotify.RefreshToken)
		}
		if !strings.Contains(out.String(), "Logged out") {
			t.Errorf("unexpected output: %s", out.String())
		}
	})
}

func TestSaveRefreshToken(t *testing.T) {
	t.Run("writes to existing file", func(t *testing.T) {
		config := testConfig(t)
		config.Spotify.ClientID = "keep"
		path := writeConfig(t, config)

		r := NewRunner(RunnerOpts{Config: testConfig(t), ConfigPath: path, Logger: quietLogger()})
		r.config.Spotify.ClientSecret = "from-env"
		r.saveRefreshToken("rotated")

		saved, _ := shared.LoadConfig(path)
		if saved.Spotify.RefreshToken != "rotated" {
			t.Errorf("expected rotated token saved, got %q", saved.Spotify.RefreshToken)
		}
		if saved.Spotify.ClientSecret == "from-env" {
			t.Error("expected in-memory secret not written to file")
		}
		if r.config.Spotify.RefreshToken != "rotated" {
			t.Error("expected in-memory config updated")
		}
	})

	t.Run("no file is created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		r := NewRunner(RunnerOpts{Config: testConfig(t), ConfigPath: path, Logger: quietLogger()})
		r.saveRefreshToken("rotated")

		if _, err := os.Stat(path); err == nil {
			t.Error("expected no config file created")
		}
	})
}
