package cli

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/internal/application/reporting"
	"github.com/turtacn/FCE-Intelligence/internal/domain/citation"
	httpapi "github.com/turtacn/FCE-Intelligence/internal/interfaces/http"
	"github.com/turtacn/FCE-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/FCE-Intelligence/internal/testutil"
)

// execute runs fcectl with args and returns what it wrote to stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type serverFixture struct {
	url string
	svc reporting.Service
}

// newServer serves the real route tree backed by in-memory fakes.
func newServer(t *testing.T) *serverFixture {
	t.Helper()
	svc := reporting.NewService(reporting.ServiceDeps{
		Builder:   reporting.NewBuilder(citation.MustBuiltin(), reporting.WithClock(testutil.FixedClock())),
		Jobs:      testutil.NewJobStore(),
		Publisher: &testutil.Publisher{},
		Store:     testutil.NewArtifactStore(),
		Clock:     testutil.FixedClock(),
	})
	router := httpapi.NewRouter(httpapi.RouterConfig{
		EngineHandler:   handlers.NewEngineHandler(handlers.EngineConfig{}, nil, nil),
		CitationHandler: handlers.NewCitationHandler(citation.MustBuiltin(), nil),
		ReportHandler:   handlers.NewReportHandler(svc, nil),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &serverFixture{url: server.URL, svc: svc}
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "fcectl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"classify", "norms", "group", "rules", "sections", "report", "citations", "migrate", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "log-level", "output", "verbose", "no-color", "timeout", "server"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("output").DefValue)
}

func TestReportSubcommands(t *testing.T) {
	var names []string
	for _, sub := range NewReportCmd().Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"preview", "submit", "status", "download", "search", "verify"}, names)
}

func TestPersistentPreRun_RejectsUnknownOutput(t *testing.T) {
	_, err := execute(t, "", "-o", "xml", "rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestPersistentPreRun_MissingConfigFile(t *testing.T) {
	_, err := execute(t, "", "--config", "/nonexistent/fce.yaml", "rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestPersistentPreRun_InvalidServer(t *testing.T) {
	_, err := execute(t, "", "--server", "localhost:8080", "rules")
	assert.Error(t, err)
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestRequireClient(t *testing.T) {
	_, err := (&CLIContext{}).RequireClient("report status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--server")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "fcectl "+Version), out)

	out, err = execute(t, "", "-o", "json", "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "`+Version+`"`)
}

func TestPrintError(t *testing.T) {
	cmd := &cobra.Command{}
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)

	PrintError(cmd, nil)
	assert.Empty(t, errOut.String())

	PrintError(cmd, assert.AnError)
	assert.Contains(t, errOut.String(), "Error:")
	assert.Contains(t, errOut.String(), assert.AnError.Error())
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(&buf, []string{"ID", "NAME"}, [][]string{{"1", "Grip Strength"}})
	assert.Contains(t, buf.String(), "ID")
	assert.Contains(t, buf.String(), "Grip Strength")

	buf.Reset()
	FormatTable(&buf, nil, nil)
	assert.Empty(t, buf.String())
}
