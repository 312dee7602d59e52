package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shakil5281/HrHub-sub001/internal/rbac"
)

// Resolver is the read side of the permission resolver used by the CLI.
type Resolver interface {
	Decide(ctx context.Context, userID, code, resource string) (rbac.Decision, error)
	Summary(ctx context.Context, userID string) (rbac.Summary, error)
}

// PermissionsCLI answers permission questions for operators.
type PermissionsCLI struct {
	resolver Resolver
}

// NewPermissionsCLI constructs the helper.
func NewPermissionsCLI(resolver Resolver) (*PermissionsCLI, error) {
	if resolver == nil {
		return nil, errors.New("permissions cli: resolver required")
	}
	return &PermissionsCLI{resolver: resolver}, nil
}

// CheckOptions defines the flags of the check command.
type CheckOptions struct {
	UserID     string
	Code       string
	Resource   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CheckCommand prints one decision. Exit code 0 means allowed, 10 denied.
func (c *PermissionsCLI) CheckCommand(ctx context.Context, opts CheckOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if strings.TrimSpace(opts.UserID) == "" || strings.TrimSpace(opts.Code) == "" {
		_, _ = fmt.Fprintln(stderr, "check: --user and --code are required")
		return 1
	}
	decision, err := c.resolver.Decide(ctx, opts.UserID, opts.Code, opts.Resource)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(decision); err != nil {
			_, _ = fmt.Fprintf(stderr, "check: encode json: %v\n", err)
			return 1
		}
	} else {
		verdict := "DENIED"
		if decision.Allowed {
			verdict = "ALLOWED"
		}
		target := "any resource"
		if decision.Resource != rbac.AnyResource {
			target = "resource " + decision.Resource
		}
		_, _ = fmt.Fprintf(stdout, "%s: %s on %s for %s (%s)\n", verdict, decision.PermissionCode, target, decision.UserID, decision.Reason)
	}
	if !decision.Allowed {
		return 10
	}
	return 0
}

// SummaryOptions defines the flags of the effective command.
type SummaryOptions struct {
	UserID     string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SummaryCommand prints a user's roles, overrides and effective permissions.
func (c *PermissionsCLI) SummaryCommand(ctx context.Context, opts SummaryOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if strings.TrimSpace(opts.UserID) == "" {
		_, _ = fmt.Fprintln(stderr, "effective: --user is required")
		return 1
	}
	summary, err := c.resolver.Summary(ctx, opts.UserID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "effective: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "effective: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderSummary(stdout, summary)
	return 0
}

func renderSummary(out io.Writer, s rbac.Summary) {
	roles := "(none)"
	if len(s.Roles) > 0 {
		roles = strings.Join(s.Roles, ", ")
	}
	_, _ = fmt.Fprintf(out, "User %s\nRoles: %s\n", s.UserID, roles)
	if len(s.Overrides) > 0 {
		_, _ = fmt.Fprintln(out, "Overrides:")
		for _, o := range s.Overrides {
			_, _ = fmt.Fprintf(out, " - %s %s%s\n", o.Effect, o.PermissionCode, scopeSuffix(o.Resource))
		}
	}
	_, _ = fmt.Fprintf(out, "Effective (%d):\n", len(s.Effective))
	for _, e := range s.Effective {
		line := fmt.Sprintf(" - %s%s via %s", e.Code, scopeSuffix(e.Resource), e.Source)
		if len(e.ExcludedResources) > 0 {
			line += " except " + strings.Join(e.ExcludedResources, ", ")
		}
		_, _ = fmt.Fprintln(out, line)
	}
}

func scopeSuffix(resource string) string {
	if resource == rbac.AnyResource {
		return ""
	}
	return " [" + resource + "]"
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
