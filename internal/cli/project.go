package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelhq/chorus/internal/codes"
	"github.com/kestrelhq/chorus/internal/config"
	"github.com/kestrelhq/chorus/internal/protocol"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage registered projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show one project's configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectStatus,
}

func init() {
	projectCreateCmd.Flags().String("path", "", "Absolute filesystem path to the project")
	projectCreateCmd.Flags().String("tools", "A", "Comma-separated enabled tools (A,B,C)")
	projectCreateCmd.Flags().String("default-tool", "A", "Default tool for new sessions")
	_ = projectCreateCmd.MarkFlagRequired("path")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectStatusCmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	name := args[0]
	if _, exists := e.cfg.Projects[name]; exists {
		return codes.Newf(codes.EProjectExists, "project %q already exists", name)
	}

	path, err := cmd.Flags().GetString("path")
	if err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		return codes.Newf(codes.EInvalidPath, "project path %q must be absolute", path)
	}
	toolsRaw, err := cmd.Flags().GetString("tools")
	if err != nil {
		return err
	}
	defaultToolRaw, err := cmd.Flags().GetString("default-tool")
	if err != nil {
		return err
	}

	var enabled []protocol.Tool
	for _, t := range strings.Split(toolsRaw, ",") {
		enabled = append(enabled, protocol.Tool(strings.ToUpper(strings.TrimSpace(t))))
	}

	now := time.Now().UTC()
	project := &config.ProjectConfig{
		Name:         name,
		Path:         path,
		EnabledTools: enabled,
		DefaultTool:  protocol.Tool(strings.ToUpper(defaultToolRaw)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := project.Validate(); err != nil {
		return err
	}

	e.cfg.Projects[name] = project
	if err := e.saveConfig(); err != nil {
		return err
	}

	if _, err := e.log.Append(protocol.EventProjectCreated, &protocol.ProjectCreatedPayload{
		ProjectName:  name,
		Path:         path,
		EnabledTools: toolStrings(enabled),
	}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "project %q registered at %s\n", name, path)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	if len(e.cfg.Projects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no projects registered")
		return nil
	}
	for name, p := range e.cfg.Projects {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tdefault=%s\n", name, p.Path, p.DefaultTool)
	}
	return nil
}

func runProjectStatus(cmd *cobra.Command, args []string) error {
	stateDir, err := stateDirFlag(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(stateDir)
	if err != nil {
		return err
	}
	defer e.close()

	p, ok := e.cfg.Projects[args[0]]
	if !ok {
		return fmt.Errorf("project %q not found", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name:          %s\n", p.Name)
	fmt.Fprintf(out, "path:          %s\n", p.Path)
	fmt.Fprintf(out, "enabled_tools: %s\n", toolStrings(p.EnabledTools))
	fmt.Fprintf(out, "default_tool:  %s\n", p.DefaultTool)
	fmt.Fprintf(out, "created_at:    %s\n", p.CreatedAt.Format(time.RFC3339))
	return nil
}

func toolStrings(tools []protocol.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = string(t)
	}
	return out
}
