package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"webscout/internal/infra/config"
	"webscout/internal/security"
)

// CheckStatus is the verdict of one doctor check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

var badgeStyles = map[CheckStatus]lipgloss.Style{
	StatusPass: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	StatusWarn: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	StatusFail: errorStyle,
}

func (s CheckStatus) badge() string {
	style, ok := badgeStyles[s]
	if !ok {
		return "[????]"
	}
	return style.Render("[" + string(s) + "]")
}

// CheckResult is what a check found, plus an optional remedy.
type CheckResult struct {
	Status  CheckStatus
	Message string
	Fix     string
}

func pass(format string, args ...any) CheckResult {
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf(format, args...)}
}

var notLoaded = CheckResult{Status: StatusWarn, Message: "skipped, config did not load"}

// Check is a named check over the loaded config. cfg is nil when loading
// failed.
type Check struct {
	Name string
	Run  func(cfg *config.Config) CheckResult
}

func doctorChecks(cfgPath string, cfgErr error, client *http.Client) []Check {
	return []Check{
		{"Config file", checkConfigFile(cfgPath, cfgErr)},
		{"URL guard", checkURLGuard},
		{"Dial-time guard", checkSafeDial},
		{"Log output", checkLogOutput},
		{"Audit log", checkAuditPath},
		{"Search endpoint", checkSearchEndpoint(client)},
	}
}

// runDoctor loads the config, runs every check and prints a report to w.
// It fails when any check fails.
func runDoctor(w io.Writer, inv invocation) error {
	cfg, cfgErr := config.Load(inv.ConfigPath)

	fmt.Fprintln(w, titleStyle.Render("webscout doctor"))
	fmt.Fprintln(w)

	counts := map[CheckStatus]int{}
	for _, c := range doctorChecks(inv.ConfigPath, cfgErr, http.DefaultClient) {
		r := c.Run(cfg)
		counts[r.Status]++
		fmt.Fprintf(w, "  %s %s: %s\n", r.Status.badge(), c.Name, r.Message)
		if r.Fix != "" {
			fmt.Fprintf(w, "         fix: %s\n", r.Fix)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d passed, %d warnings, %d failed\n", counts[StatusPass], counts[StatusWarn], counts[StatusFail])
	if n := counts[StatusFail]; n > 0 {
		return fmt.Errorf("%d check(s) failed", n)
	}
	return nil
}

// checkConfigFile fails on a load error. A missing file only warns since
// defaults apply.
func checkConfigFile(path string, loadErr error) func(*config.Config) CheckResult {
	return func(*config.Config) CheckResult {
		if loadErr != nil {
			return CheckResult{Status: StatusFail, Message: loadErr.Error(), Fix: "correct the listed fields in " + path}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return CheckResult{Status: StatusWarn, Message: "no file at " + path + ", running on defaults"}
		}
		return pass("loaded %s", path)
	}
}

func checkURLGuard(*config.Config) CheckResult {
	for _, u := range []string{"http://127.0.0.1/", "http://[::1]/", "http://169.254.169.254/"} {
		if security.ValidateURL(u) == nil {
			return CheckResult{Status: StatusFail, Message: u + " was not blocked"}
		}
	}
	if err := security.ValidateURL("https://example.com/"); err != nil {
		return CheckResult{Status: StatusFail, Message: "public URL was blocked: " + err.Error()}
	}
	return pass("loopback, private and link-local targets are refused")
}

func checkSafeDial(cfg *config.Config) CheckResult {
	switch {
	case cfg == nil:
		return notLoaded
	case !cfg.Web.SSRFSafeDial:
		return CheckResult{
			Status:  StatusWarn,
			Message: "resolved addresses are not re-checked when dialing",
			Fix:     "set web.ssrf_safe_dial: true",
		}
	}
	return pass("resolved addresses are re-checked when dialing")
}

// checkLogOutput warns when logs share stdout with serve's protocol stream.
func checkLogOutput(cfg *config.Config) CheckResult {
	switch {
	case cfg == nil:
		return notLoaded
	case strings.EqualFold(cfg.Logger.Output, "stdout"):
		return CheckResult{
			Status:  StatusWarn,
			Message: "logs go to stdout; serve redirects them to stderr",
			Fix:     "set logger.output to stderr or a file",
		}
	}
	return pass("logs go to %s", cfg.Logger.Output)
}

// checkAuditPath verifies the audit directory exists when auditing is on.
func checkAuditPath(cfg *config.Config) CheckResult {
	switch {
	case cfg == nil:
		return notLoaded
	case cfg.Audit.Path == "":
		return CheckResult{Status: StatusWarn, Message: "disabled", Fix: "set audit.path to record outbound requests"}
	}
	dir := filepath.Dir(cfg.Audit.Path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return CheckResult{Status: StatusFail, Message: "directory " + dir + " does not exist", Fix: "create it or change audit.path"}
	}
	return pass("recording to %s", cfg.Audit.Path)
}

// checkSearchEndpoint sends a HEAD request to the search endpoint.
func checkSearchEndpoint(client *http.Client) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return notLoaded
		}
		endpoint := cfg.Web.SearchEndpoint

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: "bad endpoint: " + err.Error()}
		}
		resp, err := client.Do(req)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s unreachable: %v", endpoint, err),
				Fix:     "check the network or web.search_endpoint",
			}
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("%s answered HTTP %d", endpoint, resp.StatusCode)}
		}
		return pass("%s answered HTTP %d", endpoint, resp.StatusCode)
	}
}
