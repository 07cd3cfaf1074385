package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/julienstroheker/hexpipe/internal/api"
	"github.com/julienstroheker/hexpipe/internal/config"
)

// execute runs the root command with args, capturing both output streams
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		execTimeoutFlag = 0
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(shell); err != nil {
		t.Skipf("%s not available", shell)
	}
}

func TestRootCommand(t *testing.T) {
	output, _, err := execute(t, "", "--help")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, want := range []string{"hexpipe", "tunnel", "serve", "exec", "status", "listen", "--verbose", "--config"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"tunnel", []string{"--listen", "--target"}},
		{"serve", []string{"--listen", "--target", "--path", "--shutdown-timeout"}},
		{"exec", []string{"--timeout"}},
		{"listen", []string{"--target"}},
		{"status", []string{"--addr"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			output, _, err := execute(t, "", tt.command, "--help")
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			for _, flag := range tt.flags {
				if !strings.Contains(output, flag) {
					t.Errorf("Expected output to contain %q, got: %s", flag, output)
				}
			}
		})
	}
}

func TestDefaultValues(t *testing.T) {
	if defaultTunnelListen != "127.0.0.1:7000" {
		t.Errorf("unexpected default tunnel listen address %s", defaultTunnelListen)
	}
	if defaultServeListen != ":8080" {
		t.Errorf("unexpected default serve listen address %s", defaultServeListen)
	}
	if defaultShutdownTimeout != 30 {
		t.Errorf("Expected default shutdown timeout to be 30, got: %d", defaultShutdownTimeout)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	t.Setenv("HEXPIPE_MODE", "sideways")

	_, _, err := execute(t, "", "exec", "true")
	if err == nil || !strings.Contains(err.Error(), "HEXPIPE_MODE") {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestListen_RequiresRemoteMode(t *testing.T) {
	t.Setenv("HEXPIPE_MODE", "local")

	_, _, err := execute(t, "", "listen", "--target", "localhost:9000")
	if err == nil || !strings.Contains(err.Error(), "HEXPIPE_MODE=remote") {
		t.Errorf("expected a mode error, got %v", err)
	}
}

func TestExec_Pipeline(t *testing.T) {
	requireShell(t)

	stdout, stderr, err := execute(t, "pear\napple\n",
		"exec", "--", "cat; echo banana", "sort", "tr a-z A-Z; echo done >&2")
	if err != nil {
		t.Fatalf("exec failed: %v (stderr %q)", err, stderr)
	}
	if stdout != "APPLE\nBANANA\nPEAR\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "done") {
		t.Errorf("stderr = %q, want the last stage's diagnostics", stderr)
	}
}

func TestExec_ExitCode(t *testing.T) {
	requireShell(t)

	_, _, err := execute(t, "", "exec", "--", "echo ignored", "cat >/dev/null; exit 3")
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 3 {
		t.Errorf("expected exit code 3, got %v", err)
	}
}

func TestExec_SingleCommand(t *testing.T) {
	requireShell(t)

	stdout, _, err := execute(t, "", "exec", "echo hello")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if stdout != "hello\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestExec_Timeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	_, _, err := execute(t, "", "exec", "--timeout", "200ms", "--", "sleep 30", "cat")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected a timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestResolveTarget(t *testing.T) {
	local := &config.Config{Mode: config.ModeLocal, DialTimeout: time.Second}

	target, dialer, err := resolveTarget(local, "tcp://localhost:9000")
	if err != nil || target != "tcp://localhost:9000" || dialer.Token != "" {
		t.Errorf("local target = %q, %+v, %v", target, dialer, err)
	}
	if _, _, err := resolveTarget(local, ""); err == nil {
		t.Error("expected an error without target in local mode")
	}

	remote := &config.Config{
		Mode:             config.ModeRemote,
		DialTimeout:      time.Second,
		RelayNamespace:   "contoso",
		HybridConnection: "hc1",
		SASKeyName:       "RootManageSharedAccessKey",
		SASKey:           "c2VjcmV0",
		SASExpiry:        time.Hour,
	}
	target, dialer, err = resolveTarget(remote, "")
	if err != nil {
		t.Fatalf("resolveTarget failed: %v", err)
	}
	if !strings.HasPrefix(target, "wss://contoso.servicebus.windows.net/$hc/hc1?") {
		t.Errorf("unexpected hybrid connection target %s", target)
	}
	if !strings.HasPrefix(dialer.Token, "SharedAccessSignature ") {
		t.Errorf("unexpected token %q", dialer.Token)
	}
}

func TestStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.TunnelList{
			Active: 1,
			Limit:  64,
			Tunnels: []api.TunnelInfo{
				{Name: "t1", Client: "10.0.0.1:4000", Target: "tcp://db:5432", State: "opened", Started: time.Now()},
			},
		})
	}))
	defer server.Close()
	t.Cleanup(func() { statusAddrFlag = "http://localhost:8080" })

	stdout, _, err := execute(t, "", "status", "--addr", server.URL)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"1/64 tunnels open", "NAME", "t1", "tcp://db:5432", "opened"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, stdout)
		}
	}
}
