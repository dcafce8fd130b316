package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/nodegraph/provisioner/internal/cli/config"
	"github.com/nodegraph/provisioner/internal/graph/introspect"
	"github.com/nodegraph/provisioner/internal/graph/reconcile"
	"github.com/nodegraph/provisioner/internal/graph/schema"
	"github.com/nodegraph/provisioner/internal/graph/writer"
	"github.com/nodegraph/provisioner/internal/secrets"
	"github.com/nodegraph/provisioner/internal/store"
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Context     string
	Problem     string
	Consequence string
	Suggestions []string
	NoColor     bool
}

// FormatError creates a standardized error message with suggestions
//
// Example output:
//
//	❌ SECRET NOT FOUND: credential for testuser failed in retrieve_secret: ...
//
//	   The bootstrap user was not created.
//
//	   → Seed the secret prod-TestUserPassword in the configured secret store
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	body := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)
	if opts.NoColor {
		header.DisableColor()
		body.DisableColor()
		cyan.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "❌ %s: %s\n", strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "❌ %s\n", opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		body.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		for _, s := range opts.Suggestions {
			cyan.Fprintf(&b, "   → %s\n", s)
		}
	}

	return b.String()
}

// DescribeError maps a provisioning failure onto error options
func DescribeError(err error, noColor bool) ErrorOptions {
	opts := ErrorOptions{Problem: err.Error(), NoColor: noColor}

	switch {
	case errors.Is(err, config.ErrMissingConfig):
		opts.Context = "configuration error"
		opts.Consequence = "Nothing was provisioned."
		opts.Suggestions = []string{
			"Set DEPLOYMENT_NAME and BOOTSTRAP_USER_NAME",
			"Or write them to provisioner.yaml",
		}
	case errors.Is(err, introspect.ErrSchemaQuery):
		opts.Context = "schema query failed"
		opts.Consequence = "The live schema could not be read; nothing was applied."
		opts.Suggestions = []string{"Check that the graph store is reachable at the configured graph.addrs"}
	case errors.Is(err, reconcile.ErrConversion):
		opts.Context = "unsupported predicate"
		opts.Consequence = "The live schema holds a predicate type the provisioner cannot model; nothing was applied."
		opts.Suggestions = []string{"Declare the predicate explicitly or remove it from the graph store"}
	case errors.Is(err, schema.ErrPredicateConflict):
		opts.Context = "conflicting declarations"
		opts.Consequence = "Two node types disagree on a shared predicate; nothing was applied."
	case errors.Is(err, writer.ErrSchemaApply):
		opts.Context = "schema apply failed"
		opts.Consequence = "The graph store rejected the schema document."
	case errors.Is(err, secrets.ErrSecretNotFound):
		opts.Context = "secret not found"
		opts.Consequence = "The bootstrap user was not created."
		opts.Suggestions = []string{"Seed the <deployment>-TestUserPassword secret in the configured secret store"}
	case errors.Is(err, store.ErrPersist):
		opts.Context = "persist failed"
		opts.Consequence = "The graph schema may be applied while the lookup tables are stale; rerun once the database is healthy."
		opts.Suggestions = []string{"Check database.url (DATABASE_URL)"}
	default:
		opts.Context = "provisioning failed"
	}

	return opts
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, err error, noColor bool) {
	fmt.Fprint(w, FormatError(DescribeError(err, noColor)))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}
