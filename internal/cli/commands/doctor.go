package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/qmdls/internal/cli/config"
	"github.com/leapstack-labs/qmdls/internal/cli/output"
	intconfig "github.com/leapstack-labs/qmdls/internal/config"
	"github.com/leapstack-labs/qmdls/internal/dispatch"
	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/spf13/cobra"
)

// quartoVersionTimeout bounds `quarto --version`.
const quartoVersionTimeout = 10 * time.Second

// Check statuses.
const (
	StatusPass  = "pass"
	StatusWarn  = "warn"
	StatusError = "error"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, markdown, json
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the Quarto and language server installation",
		Long: `Verify everything qmdls needs at runtime:
- the quarto CLI is on PATH and answers quarto --version
- qmdls.yaml parses and its languages section is valid
- each configured embedded language server is installed
- the virtual document temp directory is writable

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run all checks
  qmdls doctor

  # Output as JSON
  qmdls doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts, defaultDoctorEnv())
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks  []HealthCheck `json:"checks"`
	Passed  int           `json:"passed"`
	Warned  int           `json:"warned"`
	Failed  int           `json:"failed"`
	Healthy bool          `json:"healthy"`
}

// HealthCheck represents a single check result.
type HealthCheck struct {
	Name   string `json:"name"`
	Group  string `json:"group"`
	Status string `json:"status"` // "pass", "warn", "error"
	Detail string `json:"detail,omitempty"`
}

// doctorEnv reaches the outside world.
type doctorEnv struct {
	lookPath      func(file string) (string, error)
	quartoVersion func(ctx context.Context, path string) (string, error)
	serverPath    func(server intconfig.ServerConfig) (string, error)
}

func defaultDoctorEnv() doctorEnv {
	return doctorEnv{
		lookPath:      exec.LookPath,
		quartoVersion: quartoVersion,
		serverPath:    dispatch.LookPath,
	}
}

func quartoVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, quartoVersionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions, env doctorEnv) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	r := newRenderer(cmd, cfg, opts.Format)

	var checks []HealthCheck
	checks = append(checks, checkQuarto(cmd.Context(), env)...)

	project, projectChecks := checkProject(cfg.ProjectRoot)
	checks = append(checks, projectChecks...)
	checks = append(checks, checkServers(project, env)...)

	cmdCtx := &CommandContext{Cfg: cfg, Project: project, Logger: logger}
	checks = append(checks, checkTempDir(cmdCtx.TempDir()))

	doctorOutput := buildDoctorOutput(checks)
	logger.Debug("Doctor finished", "passed", doctorOutput.Passed, "warned", doctorOutput.Warned, "failed", doctorOutput.Failed)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(doctorOutput)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, doctorOutput)
	default:
		return renderDoctorText(r, doctorOutput)
	}
}

func checkQuarto(ctx context.Context, env doctorEnv) []HealthCheck {
	path, err := env.lookPath("quarto")
	if err != nil {
		return []HealthCheck{{
			Name:   "quarto CLI",
			Group:  "quarto",
			Status: StatusError,
			Detail: "quarto not found on PATH; install it from https://quarto.org",
		}}
	}
	checks := []HealthCheck{{Name: "quarto CLI", Group: "quarto", Status: StatusPass, Detail: path}}

	version, err := env.quartoVersion(ctx, path)
	if err != nil {
		checks = append(checks, HealthCheck{
			Name:   "quarto --version",
			Group:  "quarto",
			Status: StatusError,
			Detail: err.Error(),
		})
		return checks
	}
	return append(checks, HealthCheck{Name: "quarto --version", Group: "quarto", Status: StatusPass, Detail: version})
}

// checkProject loads the project config. A broken config is reported and
// replaced by the defaults so the remaining checks still run.
func checkProject(root string) (*intconfig.ProjectConfig, []HealthCheck) {
	project, err := intconfig.LoadOrDefault(root)
	if err != nil {
		return intconfig.Default(), []HealthCheck{{
			Name:   "project config",
			Group:  "configuration",
			Status: StatusError,
			Detail: err.Error(),
		}}
	}

	detail := "defaults (no " + intconfig.ConfigFileName + ")"
	if project.Path != "" {
		detail = project.Path
	}
	checks := []HealthCheck{{Name: "project config", Group: "configuration", Status: StatusPass, Detail: detail}}

	registry, err := project.Registry(languages.Builtin())
	if err != nil {
		return project, append(checks, HealthCheck{
			Name:   "languages",
			Group:  "configuration",
			Status: StatusError,
			Detail: err.Error(),
		})
	}
	return project, append(checks, HealthCheck{
		Name:   "languages",
		Group:  "configuration",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d registered", registry.Len()),
	})
}

func checkServers(project *intconfig.ProjectConfig, env doctorEnv) []HealthCheck {
	ids := make([]string, 0, len(project.Servers))
	for id := range project.Servers {
		if _, ok := project.Server(id); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	checks := make([]HealthCheck, 0, len(ids))
	for _, id := range ids {
		server, _ := project.Server(id)
		check := HealthCheck{Name: id, Group: "servers"}
		if path, err := env.serverPath(server); err != nil {
			check.Status = StatusWarn
			check.Detail = server.Command[0] + " not found on PATH"
		} else {
			check.Status = StatusPass
			check.Detail = path
		}
		checks = append(checks, check)
	}
	return checks
}

func checkTempDir(dir string) HealthCheck {
	check := HealthCheck{Name: "temp directory", Group: "workspace", Detail: dir}
	if err := os.MkdirAll(dir, 0750); err != nil {
		check.Status = StatusError
		check.Detail = err.Error()
		return check
	}
	f, err := os.CreateTemp(dir, ".qmdls-doctor-*")
	if err != nil {
		check.Status = StatusError
		check.Detail = dir + " is not writable: " + err.Error()
		return check
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	check.Status = StatusPass
	return check
}

func buildDoctorOutput(checks []HealthCheck) *DoctorOutput {
	out := &DoctorOutput{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case StatusPass:
			out.Passed++
		case StatusWarn:
			out.Warned++
		case StatusError:
			out.Failed++
		}
	}
	out.Healthy = out.Failed == 0
	return out
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	// Header
	r.Println("")
	r.Println(styles.Header1.Render("qmdls Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			if currentGroup != "" {
				r.Println("")
			}
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}
		r.StatusLine(check.Name, statusName(check.Status), check.Detail)
	}
	r.Println("")

	// Summary
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	summaryStyle := styles.Success
	if out.Warned > 0 {
		summaryStyle = styles.Warning
	}
	if out.Failed > 0 {
		summaryStyle = styles.Error
	}
	r.Printf("   %s\n", summaryStyle.Render(summaryLine(out)))
	r.Println("")

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# qmdls Health Report")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			if currentGroup != "" {
				r.Println("")
			}
			currentGroup = check.Group
			r.Println("## " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case StatusWarn:
			status = "WARN"
		case StatusError:
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s", status, check.Name)
		if check.Detail != "" {
			r.Printf(": %s", check.Detail)
		}
		r.Println("")
	}
	r.Println("")

	r.Println("## Summary")
	r.Println("")
	r.Printf("**%s**\n", summaryLine(out))

	return nil
}

// statusName maps a check status to a renderer status.
func statusName(status string) string {
	switch status {
	case StatusWarn:
		return "warning"
	case StatusError:
		return "failed"
	default:
		return "success"
	}
}

func summaryLine(out *DoctorOutput) string {
	return fmt.Sprintf("%d passed, %d warnings, %d failed", out.Passed, out.Warned, out.Failed)
}
