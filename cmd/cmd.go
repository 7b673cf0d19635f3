// Package cmd provides CLI command implementations for mermaid-mcp.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/config"
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/logging"
	"github.com/Benny93/mermaid-mcp/internal/optimizer"
	"github.com/Benny93/mermaid-mcp/internal/server"
	"github.com/Benny93/mermaid-mcp/internal/storage"
	"github.com/Benny93/mermaid-mcp/internal/templates"
	"github.com/Benny93/mermaid-mcp/internal/tools"
	"github.com/Benny93/mermaid-mcp/internal/validator"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ErrInvalidDiagram is returned by validate when the diagram has errors.
var ErrInvalidDiagram = errors.New("diagram is invalid")

// Env carries the process streams and global flags into commands.
type Env struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Verbose bool
	Quiet   bool
}

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	bold   = color.New(color.Bold)
)

// readSource reads a diagram from path, or from stdin when path is "-".
func readSource(env *Env, path string) (string, error) {
	if path == "-" || path == "" {
		data, err := io.ReadAll(env.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ServeCmd starts the JSON-RPC server on stdio and the streaming transport.
type ServeCmd struct {
	config.Config `embed:""`
}

// Run executes the serve command.
func (c *ServeCmd) Run(env *Env) error {
	logger, err := logging.New(env.Stderr, logging.Level(c.Log.Level, env.Verbose, env.Quiet))
	if err != nil {
		return err
	}

	ctx := context.Background()
	srv, err := server.New(ctx, c.Config, Version, server.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	if c.SSE.Enabled {
		logger.Info("starting server", "version", Version, "sse", fmt.Sprintf("%s:%d", c.SSE.Host, c.SSE.Port))
	} else {
		logger.Info("starting server", "version", Version)
	}
	return srv.Run(ctx, env.Stdin, env.Stdout)
}

// ValidateCmd checks a diagram for syntax errors.
type ValidateCmd struct {
	File   string `arg:"" optional:"" default:"-" help:"Diagram file (- for stdin)"`
	Strict bool   `help:"Reserved for stricter checks"`
	JSON   bool   `help:"Print the result as JSON"`
}

// Run executes the validate command.
func (c *ValidateCmd) Run(env *Env) error {
	src, err := readSource(env, c.File)
	if err != nil {
		return err
	}

	res := validator.New().Validate(src, c.Strict)
	if c.JSON {
		if err := writeJSON(env.Stdout, res); err != nil {
			return err
		}
	} else {
		printValidation(env.Stdout, res)
	}

	if !res.Valid {
		return ErrInvalidDiagram
	}
	return nil
}

func printValidation(w io.Writer, res validator.Result) {
	if res.Valid {
		if res.Metadata != nil {
			green.Fprintf(w, "✓ Valid %s diagram (%s)\n", res.Metadata.DiagramType, res.Metadata.ParserUsed)
		} else {
			green.Fprintln(w, "✓ Valid diagram")
		}
	} else {
		location := ""
		if res.Line > 0 {
			location = fmt.Sprintf("line %d", res.Line)
			if res.Column > 0 {
				location += fmt.Sprintf(", column %d", res.Column)
			}
			location += ": "
		}
		red.Fprintf(w, "✗ %s%s\n", location, res.Error)
	}

	for _, s := range res.Suggestions {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}

// AnalyzeCmd reports the structure, complexity and issues of a diagram.
type AnalyzeCmd struct {
	File string `arg:"" optional:"" default:"-" help:"Diagram file (- for stdin)"`
	JSON bool   `help:"Print the analysis as JSON"`
}

// Run executes the analyze command.
func (c *AnalyzeCmd) Run(env *Env) error {
	src, err := readSource(env, c.File)
	if err != nil {
		return err
	}

	a := analyzer.Analyze(src)
	if c.JSON {
		return writeJSON(env.Stdout, a)
	}

	w := env.Stdout
	bold.Fprintf(w, "%s diagram\n", a.DiagramType)
	fmt.Fprintf(w, "  Nodes:       %d\n", a.NodeCount)
	fmt.Fprintf(w, "  Edges:       %d\n", a.EdgeCount)
	fmt.Fprintf(w, "  Complexity:  %s (%d)\n", a.Complexity, a.Score)
	fmt.Fprintf(w, "  Max depth:   %d\n", a.Structure.MaxDepth)
	fmt.Fprintf(w, "  Branching:   %.2f\n", a.Structure.BranchingFactor)
	fmt.Fprintf(w, "  Cycles:      %t\n", a.Structure.Cyclic)

	if len(a.Issues) == 0 {
		green.Fprintln(w, "\n✓ No issues found")
		return nil
	}

	fmt.Fprintf(w, "\nIssues (%d):\n", len(a.Issues))
	for _, issue := range a.Issues {
		out := yellow
		if issue.Severity == analyzer.SeverityHigh {
			out = red
		}
		line := ""
		if issue.Line > 0 {
			line = fmt.Sprintf(" (line %d)", issue.Line)
		}
		out.Fprintf(w, "  [%s] %s: %s%s\n", issue.Severity, issue.Type, issue.Description, line)
	}
	return nil
}

// OptimizeCmd suggests and applies improvements to a diagram.
type OptimizeCmd struct {
	File              string   `arg:"" optional:"" default:"-" help:"Diagram file (- for stdin)"`
	Goal              []string `short:"g" enum:"readability,compactness,aesthetics,accessibility" help:"Optimization goals (repeatable, default all)"`
	PreserveSemantics bool     `default:"true" negatable:"" help:"Keep the extracted nodes and edges unchanged"`
	MaxSuggestions    int      `short:"n" default:"10" help:"Maximum suggestions"`
	JSON              bool     `help:"Print the result as JSON"`
}

// Run executes the optimize command.
func (c *OptimizeCmd) Run(env *Env) error {
	src, err := readSource(env, c.File)
	if err != nil {
		return err
	}

	goals := make([]optimizer.Goal, 0, len(c.Goal))
	for _, g := range c.Goal {
		goals = append(goals, optimizer.Goal(g))
	}
	res := optimizer.New().Optimize(src, optimizer.Options{
		Goals:             goals,
		PreserveSemantics: c.PreserveSemantics,
		MaxSuggestions:    c.MaxSuggestions,
	})
	if c.JSON {
		return writeJSON(env.Stdout, res)
	}
	printOptimization(env.Stdout, res)
	return nil
}

func printOptimization(w io.Writer, res optimizer.Result) {
	m := res.Metrics
	fmt.Fprintf(w, "Scores: readability %d, compactness %d, aesthetics %d, accessibility %d\n",
		m.ReadabilityScore, m.CompactnessScore, m.AestheticsScore, m.AccessibilityScore)

	if len(res.Suggestions) > 0 {
		fmt.Fprintf(w, "\nSuggestions (%d):\n", len(res.Suggestions))
		for i, s := range res.Suggestions {
			bold.Fprintf(w, "%d. %s", i+1, s.Title)
			fmt.Fprintf(w, " [%s, %s impact]\n", s.Type, s.Impact)
			fmt.Fprintf(w, "   %s\n", s.Description)
		}
	}

	if len(res.AppliedOptimizations) > 0 {
		green.Fprintf(w, "\n✓ Applied: %s\n", strings.Join(res.AppliedOptimizations, ", "))
	}
	fmt.Fprintf(w, "\n%s\n", res.OptimizedCode)
}

// ConvertCmd translates a diagram into another diagram type.
type ConvertCmd struct {
	File     string `arg:"" optional:"" default:"-" help:"Diagram file (- for stdin)"`
	To       string `short:"t" default:"auto" help:"Target type (auto, flowchart, sequence, class, er, state, mindmap)"`
	Optimize bool   `help:"Normalize the converted diagram"`
	JSON     bool   `help:"Print the result as JSON"`
}

// Validate rejects unknown target types before reading the input.
func (c *ConvertCmd) Validate() error {
	if strings.EqualFold(c.To, optimizer.Auto) {
		return nil
	}
	to := diagram.ParseType(c.To)
	for _, t := range optimizer.Targets() {
		if t == to {
			return nil
		}
	}
	return fmt.Errorf("unsupported target type %q", c.To)
}

// Run executes the convert command.
func (c *ConvertCmd) Run(env *Env) error {
	src, err := readSource(env, c.File)
	if err != nil {
		return err
	}

	res := optimizer.New().ConvertFormat(src, c.To, c.Optimize)
	if c.JSON {
		return writeJSON(env.Stdout, res)
	}
	for _, applied := range res.AppliedOptimizations {
		if applied == optimizer.AppliedPassThrough {
			yellow.Fprintln(env.Stderr, "! conversion not supported, source returned unchanged")
		}
	}
	fmt.Fprintln(env.Stdout, res.OptimizedCode)
	return nil
}

// TemplatesCmd searches the template catalog.
type TemplatesCmd struct {
	Type     string `help:"Filter by diagram type"`
	Category string `help:"Filter by category"`
	Search   string `short:"s" help:"Full-text search over name, description and tags"`
	Limit    int    `short:"n" default:"20" help:"Maximum results"`
	Dir      string `type:"path" env:"MERMAID_TEMPLATES_DIR" help:"Directory of YAML template files"`
	Code     bool   `help:"Print each template's code"`
	JSON     bool   `help:"Print the results as JSON"`
}

// Run executes the templates command.
func (c *TemplatesCmd) Run(env *Env) error {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	defer func() { _ = store.Close() }()

	if _, err := templates.Load(ctx, store, c.Dir); err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	q := storage.Query{Category: c.Category, Search: c.Search, Limit: c.Limit}
	if c.Type != "" {
		q.DiagramType = diagram.ParseType(c.Type)
	}
	found, total, err := store.Search(ctx, q)
	if err != nil {
		return fmt.Errorf("searching templates: %w", err)
	}

	if c.JSON {
		return writeJSON(env.Stdout, tools.TemplateList{Templates: found, Total: total})
	}
	if len(found) == 0 {
		fmt.Fprintln(env.Stdout, "No templates found")
		return nil
	}

	for i, t := range found {
		bold.Fprintf(env.Stdout, "\n%d. %s", i+1, t.Name)
		fmt.Fprintf(env.Stdout, " (%s, %s)\n", t.DiagramType, t.Category)
		fmt.Fprintf(env.Stdout, "   ID: %s\n", t.ID)
		fmt.Fprintf(env.Stdout, "   %s\n", t.Description)
		if c.Code {
			fmt.Fprintf(env.Stdout, "\n%s\n", t.Code)
		}
	}
	if total > len(found) {
		fmt.Fprintf(env.Stdout, "\nShowing %d of %d templates\n", len(found), total)
	}
	return nil
}

// ToolsCmd prints the tool registry with input schemas.
type ToolsCmd struct{}

// Run executes the tools command.
func (c *ToolsCmd) Run(env *Env) error {
	registry, err := tools.New(tools.Services{
		Validator: validator.New(),
		Optimizer: optimizer.New(),
		Templates: storage.NewMemoryStore(),
	})
	if err != nil {
		return err
	}
	return writeJSON(env.Stdout, map[string]any{"tools": registry.List()})
}

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen         bool   `help:"Configure for Qwen CLI"`
	Claude       bool   `help:"Configure for Claude Code"`
	Cursor       bool   `help:"Configure for Cursor"`
	Local        bool   `help:"Create project-local configuration"`
	Global       bool   `help:"Create global configuration"`
	Format       string `help:"Output format (json|yaml)" enum:"json,yaml" default:"json"`
	FilePath     string `help:"Custom directory for the configuration file"`
	TemplatesDir string `help:"Template directory the server should load and watch" type:"path"`
	NoSSE        bool   `name:"no-sse" help:"Configure the server without the streaming transport"`
}

// Run executes the setup command.
func (c *SetupCmd) Run(env *Env) error {
	if c.Format != "json" && c.Format != "yaml" {
		return fmt.Errorf("invalid format: %s (must be json or yaml)", c.Format)
	}

	cfg := c.serverConfig()

	// Without a specific client the configuration goes to stdout.
	if !c.Qwen && !c.Claude && !c.Cursor {
		content, err := encodeConfig(cfg, c.Format)
		if err != nil {
			return err
		}
		_, err = env.Stdout.Write(content)
		return err
	}

	if !c.Local && !c.Global {
		c.Local = true
	}

	for _, client := range []struct {
		enabled bool
		name    string
		title   string
	}{
		{c.Qwen, "qwen", "Qwen"},
		{c.Claude, "claude", "Claude"},
		{c.Cursor, "cursor", "Cursor"},
	} {
		if !client.enabled {
			continue
		}
		if err := c.setupClient(env, cfg, client.name, client.title); err != nil {
			return err
		}
	}
	return nil
}

func (c *SetupCmd) setupClient(env *Env, cfg map[string]any, client, title string) error {
	if c.Global {
		globalPath := getGlobalConfigPath(client, c.Format)
		if err := writeConfig(globalPath, cfg, c.Format); err != nil {
			return err
		}
		green.Fprintf(env.Stdout, "✓ Created global %s MCP config at %s\n", title, globalPath)
	}

	if c.Local {
		var localPath string
		if c.FilePath != "" {
			localPath = filepath.Join(c.FilePath, configFileName(c.Format))
		} else {
			localPath = getLocalConfigPath(".", client, c.Format)
		}
		if err := writeConfig(localPath, cfg, c.Format); err != nil {
			return err
		}
		green.Fprintf(env.Stdout, "✓ Created local %s MCP config at %s\n", title, localPath)
	}
	return nil
}

func (c *SetupCmd) serverConfig() map[string]any {
	args := []string{"serve"}
	if c.TemplatesDir != "" {
		args = append(args, "--templates-dir", c.TemplatesDir, "--templates-watch")
	}
	if c.NoSSE {
		args = append(args, "--no-sse-enabled")
	}
	return generateServerConfig(args)
}

func generateServerConfig(args []string) map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"mermaid-mcp": map[string]any{
				"command": "mermaid-mcp",
				"args":    args,
			},
		},
	}
}

func configFileName(format string) string {
	if format == "yaml" {
		return "mcp.yaml"
	}
	return "mcp.json"
}

func getLocalConfigPath(basePath, client, format string) string {
	return filepath.Join(basePath, getClientConfigDir(client), configFileName(format))
}

func getGlobalConfigPath(client, format string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, getClientConfigDir(client), "global", configFileName(format))
}

func getClientConfigDir(client string) string {
	switch client {
	case "claude":
		return ".claude"
	case "cursor":
		return ".cursor"
	default:
		return ".qwen"
	}
}

func encodeConfig(cfg map[string]any, format string) ([]byte, error) {
	if format == "yaml" {
		content, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling YAML: %w", err)
		}
		return content, nil
	}
	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON: %w", err)
	}
	return append(content, '\n'), nil
}

func writeConfig(configPath string, cfg map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	content, err := encodeConfig(cfg, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`

	// Commands
	Serve     ServeCmd     `cmd:"" help:"Start the MCP server (stdio JSON-RPC and streaming HTTP)"`
	Validate  ValidateCmd  `cmd:"" help:"Validate diagram syntax"`
	Analyze   AnalyzeCmd   `cmd:"" help:"Report diagram structure, complexity and issues"`
	Optimize  OptimizeCmd  `cmd:"" help:"Suggest and apply diagram improvements"`
	Convert   ConvertCmd   `cmd:"" help:"Convert a diagram to another type"`
	Templates TemplatesCmd `cmd:"" help:"Search the diagram template catalog"`
	Tools     ToolsCmd     `cmd:"" help:"List the MCP tools with their input schemas"`
	Setup     SetupCmd     `cmd:"" help:"Configure MCP for Claude Code / Cursor / Qwen"`

	env *Env `kong:"-"`
}

// NewCLI creates a new CLI instance bound to the process streams.
func NewCLI() *CLI {
	return &CLI{env: &Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	loadDotEnv()

	parser, err := kong.New(c,
		kong.Name("mermaid-mcp"),
		kong.Description("Mermaid diagram validation, analysis and optimization over MCP"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
		kong.Writers(c.env.Stdout, c.env.Stderr),
		kong.Bind(c.env),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	c.env.Verbose = c.Verbose
	c.env.Quiet = c.Quiet
	return kongCtx.Run()
}

// loadDotEnv loads a .env file from the working directory so its values can
// feed the MERMAID_* flag defaults. Variables already set are not replaced.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}
}
