package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/mermaid-mcp/internal/analyzer"
	"github.com/Benny93/mermaid-mcp/internal/optimizer"
	"github.com/Benny93/mermaid-mcp/internal/templates"
	"github.com/Benny93/mermaid-mcp/internal/tools"
	"github.com/Benny93/mermaid-mcp/internal/validator"
)

const flowchart = "flowchart TD\n    A[Start] --> B{Ready?}\n    B -->|yes| C[Ship]\n    B -->|no| A\n"

func testEnv(stdin string) (*Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &Env{Stdin: strings.NewReader(stdin), Stdout: &stdout, Stderr: &stderr}, &stdout, &stderr
}

func writeDiagram(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagram.mmd")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("ValidFile", func(t *testing.T) {
		env, out, _ := testEnv("")
		cmd := &ValidateCmd{File: writeDiagram(t, flowchart)}

		require.NoError(t, cmd.Run(env))
		assert.Contains(t, out.String(), "Valid flowchart diagram")
	})

	t.Run("InvalidStdin", func(t *testing.T) {
		env, out, _ := testEnv("stateDiagram-v2\n  [*] -> Idle\n")
		cmd := &ValidateCmd{File: "-"}

		err := cmd.Run(env)
		assert.ErrorIs(t, err, ErrInvalidDiagram)
		assert.Contains(t, out.String(), "✗ line 2")
		assert.Contains(t, out.String(), "Invalid arrow")
	})

	t.Run("JSON", func(t *testing.T) {
		env, out, _ := testEnv("pie\n    \"Dogs\" : 3\n")
		cmd := &ValidateCmd{File: "-", JSON: true}

		require.NoError(t, cmd.Run(env))
		var res validator.Result
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
		assert.True(t, res.Valid)
		require.NotNil(t, res.Metadata)
		assert.Equal(t, "pie", string(res.Metadata.DiagramType))
	})

	t.Run("MissingFile", func(t *testing.T) {
		env, _, _ := testEnv("")
		cmd := &ValidateCmd{File: "/nonexistent/diagram.mmd"}
		assert.Error(t, cmd.Run(env))
	})
}

func TestAnalyzeCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("JSON", func(t *testing.T) {
		env, out, _ := testEnv(flowchart)
		cmd := &AnalyzeCmd{File: "-", JSON: true}

		require.NoError(t, cmd.Run(env))
		var a analyzer.Analysis
		require.NoError(t, json.Unmarshal(out.Bytes(), &a))
		assert.Equal(t, 3, a.NodeCount)
		assert.Equal(t, 3, a.EdgeCount)
		assert.True(t, a.Structure.Cyclic)
	})

	t.Run("Text", func(t *testing.T) {
		env, out, _ := testEnv("")
		cmd := &AnalyzeCmd{File: writeDiagram(t, flowchart)}

		require.NoError(t, cmd.Run(env))
		assert.Contains(t, out.String(), "flowchart diagram")
		assert.Contains(t, out.String(), "Nodes:       3")
		assert.Contains(t, out.String(), "Cycles:      true")
	})
}

func TestOptimizeCmd_Run(t *testing.T) {
	t.Parallel()

	t.Run("JSON", func(t *testing.T) {
		env, out, _ := testEnv(flowchart)
		cmd := &OptimizeCmd{File: "-", Goal: []string{"readability"}, PreserveSemantics: true, MaxSuggestions: 2, JSON: true}

		require.NoError(t, cmd.Run(env))
		var res optimizer.Result
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
		assert.Equal(t, flowchart, res.OriginalCode)
		assert.NotEmpty(t, res.OptimizedCode)
		assert.LessOrEqual(t, len(res.Suggestions), 2)
	})

	t.Run("Text", func(t *testing.T) {
		env, out, _ := testEnv(flowchart)
		cmd := &OptimizeCmd{File: "-", PreserveSemantics: true, MaxSuggestions: 10}

		require.NoError(t, cmd.Run(env))
		assert.Contains(t, out.String(), "Scores: readability")
	})
}

func TestConvertCmd(t *testing.T) {
	t.Parallel()

	t.Run("Validate", func(t *testing.T) {
		assert.NoError(t, (&ConvertCmd{To: "auto"}).Validate())
		assert.NoError(t, (&ConvertCmd{To: "sequence"}).Validate())
		assert.NoError(t, (&ConvertCmd{To: "stateDiagram-v2"}).Validate())
		assert.ErrorContains(t, (&ConvertCmd{To: "venn"}).Validate(), "unsupported target type")
		assert.Error(t, (&ConvertCmd{To: "pie"}).Validate())
	})

	t.Run("ToSequence", func(t *testing.T) {
		env, out, _ := testEnv("flowchart LR\n    Client --> Server\n")
		cmd := &ConvertCmd{File: "-", To: "sequence"}

		require.NoError(t, cmd.Run(env))
		assert.True(t, strings.HasPrefix(out.String(), "sequenceDiagram"), out.String())
	})

	t.Run("PassThroughWarns", func(t *testing.T) {
		env, out, errOut := testEnv("hello world")
		cmd := &ConvertCmd{File: "-", To: "flowchart"}

		require.NoError(t, cmd.Run(env))
		assert.Equal(t, "hello world\n", out.String())
		assert.Contains(t, errOut.String(), "conversion not supported")
	})
}

func TestTemplatesCmd_Run(t *testing.T) {
	t.Parallel()

	search := func(t *testing.T, cmd *TemplatesCmd) tools.TemplateList {
		t.Helper()
		env, out, _ := testEnv("")
		cmd.JSON = true
		require.NoError(t, cmd.Run(env))

		var list tools.TemplateList
		require.NoError(t, json.Unmarshal(out.Bytes(), &list))
		return list
	}

	t.Run("All", func(t *testing.T) {
		list := search(t, &TemplatesCmd{})
		assert.Equal(t, len(templates.Builtin()), list.Total)
	})

	t.Run("FilterByType", func(t *testing.T) {
		list := search(t, &TemplatesCmd{Type: "pie", Limit: 20})
		require.NotEmpty(t, list.Templates)
		for _, tmpl := range list.Templates {
			assert.Equal(t, "pie", string(tmpl.DiagramType))
		}
	})

	t.Run("CustomDir", func(t *testing.T) {
		dir := t.TempDir()
		doc := "templates:\n  - id: release-flow\n    name: Release Flow\n    category: process\n    diagramType: flowchart\n    code: |\n      flowchart LR\n          Build --> Ship\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(doc), 0o644))

		list := search(t, &TemplatesCmd{Dir: dir, Category: "process"})
		var ids []string
		for _, tmpl := range list.Templates {
			ids = append(ids, tmpl.ID)
		}
		assert.Contains(t, ids, "release-flow")
	})

	t.Run("NoResults", func(t *testing.T) {
		env, out, _ := testEnv("")
		cmd := &TemplatesCmd{Category: "no-such-category", Limit: 20}
		require.NoError(t, cmd.Run(env))
		assert.Contains(t, out.String(), "No templates found")
	})

	t.Run("BadDir", func(t *testing.T) {
		env, _, _ := testEnv("")
		cmd := &TemplatesCmd{Dir: "/nonexistent/templates"}
		assert.Error(t, cmd.Run(env))
	})
}

func TestToolsCmd_Run(t *testing.T) {
	t.Parallel()

	env, out, _ := testEnv("")
	require.NoError(t, (&ToolsCmd{}).Run(env))

	var listed struct {
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))

	var names []string
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.ElementsMatch(t, []string{
		tools.ValidateMermaid, tools.GetDiagramTemplates, tools.OptimizeDiagram,
		tools.ConvertDiagramFormat, tools.AnalyzeDiagram,
	}, names)
}

func TestSetupCmd_Run(t *testing.T) {
	t.Run("SetupQwenLocal", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)
		env, _, _ := testEnv("")

		cmd := &SetupCmd{Qwen: true, Local: true, Format: "json"}
		require.NoError(t, cmd.Run(env))

		_, err := os.Stat(filepath.Join(tmpDir, ".qwen", "mcp.json"))
		assert.NoError(t, err)
	})

	t.Run("SetupClaudeGlobal", func(t *testing.T) {
		tmpHome := t.TempDir()
		t.Setenv("HOME", tmpHome)
		env, out, _ := testEnv("")

		cmd := &SetupCmd{Claude: true, Global: true, Format: "json"}
		require.NoError(t, cmd.Run(env))

		globalPath := filepath.Join(tmpHome, ".claude", "global", "mcp.json")
		_, err := os.Stat(globalPath)
		assert.NoError(t, err)
		assert.Contains(t, out.String(), globalPath)
	})

	t.Run("SetupCursorYAML", func(t *testing.T) {
		tmpDir := t.TempDir()
		env, _, _ := testEnv("")

		cmd := &SetupCmd{Cursor: true, Format: "yaml", FilePath: tmpDir, TemplatesDir: "/srv/templates"}
		require.NoError(t, cmd.Run(env))

		content, err := os.ReadFile(filepath.Join(tmpDir, "mcp.yaml"))
		require.NoError(t, err)
		var loaded map[string]any
		require.NoError(t, yaml.Unmarshal(content, &loaded))

		server := loaded["mcpServers"].(map[string]any)["mermaid-mcp"].(map[string]any)
		assert.Equal(t, "mermaid-mcp", server["command"])
		assert.Equal(t, []any{"serve", "--templates-dir", "/srv/templates", "--templates-watch"}, server["args"])
	})

	t.Run("SetupDefault", func(t *testing.T) {
		env, out, _ := testEnv("")

		cmd := &SetupCmd{Format: "json", NoSSE: true}
		require.NoError(t, cmd.Run(env))

		var loaded map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &loaded))
		assert.Contains(t, loaded, "mcpServers")
		assert.Contains(t, out.String(), "--no-sse-enabled")
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		env, _, _ := testEnv("")
		cmd := &SetupCmd{Qwen: true, Format: "toml"}
		assert.Error(t, cmd.Run(env))
	})
}

func TestConfigPaths(t *testing.T) {
	t.Parallel()

	t.Run("GetLocalConfigPath", func(t *testing.T) {
		tmpDir := t.TempDir()
		assert.Equal(t, filepath.Join(tmpDir, ".qwen", "mcp.json"), getLocalConfigPath(tmpDir, "qwen", "json"))
		assert.Equal(t, filepath.Join(tmpDir, ".cursor", "mcp.yaml"), getLocalConfigPath(tmpDir, "cursor", "yaml"))
	})

	t.Run("GetClientConfigDir", func(t *testing.T) {
		assert.Equal(t, ".qwen", getClientConfigDir("qwen"))
		assert.Equal(t, ".claude", getClientConfigDir("claude"))
		assert.Equal(t, ".cursor", getClientConfigDir("cursor"))
	})

	t.Run("WriteConfigCreatesDirectory", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
		require.NoError(t, writeConfig(configPath, map[string]any{"test": "value"}, "json"))

		content, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.JSONEq(t, `{"test": "value"}`, string(content))
	})
}

func TestCLI_Execute(t *testing.T) {
	t.Parallel()

	newCLI := func(stdin string) (*CLI, *bytes.Buffer, *bytes.Buffer) {
		env, out, errOut := testEnv(stdin)
		return &CLI{env: env}, out, errOut
	}

	t.Run("Validate", func(t *testing.T) {
		cli, out, _ := newCLI(flowchart)
		require.NoError(t, cli.Execute([]string{"validate", "-"}))
		assert.Contains(t, out.String(), "Valid flowchart diagram")
	})

	t.Run("GlobalFlags", func(t *testing.T) {
		cli, _, _ := newCLI(flowchart)
		require.NoError(t, cli.Execute([]string{"-q", "analyze", "--json"}))
		assert.True(t, cli.env.Quiet)
		assert.False(t, cli.env.Verbose)
	})

	t.Run("ConvertRejectsTarget", func(t *testing.T) {
		cli, _, _ := newCLI(flowchart)
		assert.Error(t, cli.Execute([]string{"convert", "--to", "venn"}))
	})

	t.Run("OptimizeRejectsGoal", func(t *testing.T) {
		cli, _, _ := newCLI(flowchart)
		assert.Error(t, cli.Execute([]string{"optimize", "--goal", "layout"}))
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		cli, _, _ := newCLI("")
		assert.Error(t, cli.Execute([]string{"index"}))
	})

	t.Run("ServeUntilEOF", func(t *testing.T) {
		cli, out, errOut := newCLI(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
		require.NoError(t, cli.Execute([]string{"serve", "--no-sse-enabled", "--log-level", "debug"}))
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, strings.TrimSpace(out.String()))
		assert.Contains(t, errOut.String(), "starting server")
	})

	t.Run("ServeRejectsConfig", func(t *testing.T) {
		cli, _, _ := newCLI("")
		assert.Error(t, cli.Execute([]string{"serve", "--sse-max-connections", "0"}))
	})
}
