package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"annopedia/internal/mail"
	"annopedia/internal/management"
	"annopedia/internal/store"
	"annopedia/internal/types"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	projectTypeFilter string
	wordWrap          int
)

// Table colors
var (
	headerColor = lipgloss.Color("#8BC34A")
	mutedColor  = lipgloss.Color("#6B7280")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(headerColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(headerColor).MarginBottom(1)
)

// projectsCmd groups read-only project inspection commands
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Inspect annotation projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects in creation order",
	RunE:  listProjects,
}

var projectsShowCmd = &cobra.Command{
	Use:   "show [url]",
	Short: "Show a project with its statistics and talk page",
	Args:  cobra.ExactArgs(1),
	RunE:  showProject,
}

// openService opens the configured store for a one-off command.
func openService() (*management.Service, *store.Store, error) {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return management.New(st, mail.New(cfg.Mail), cfg.Mail), st, nil
}

func listProjects(cmd *cobra.Command, args []string) error {
	filter := ""
	if projectTypeFilter != "" {
		pt, ok := types.ParseProjectType(projectTypeFilter)
		if !ok {
			return fmt.Errorf("unknown project type %q", projectTypeFilter)
		}
		filter = string(pt)
	}

	svc, st, err := openService()
	if err != nil {
		return err
	}
	defer st.Close()

	projects, err := svc.ListProjects(cmd.Context(), filter)
	if err != nil {
		return err
	}
	renderProjectTable(cmd.OutOrStdout(), projects)
	return nil
}

// renderProjectTable writes one row per project with aligned columns.
func renderProjectTable(w io.Writer, projects []*management.ProjectView) {
	if len(projects) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No projects found"))
		return
	}

	rows := [][]string{{"URL", "NAME", "TYPE", "ADMINISTRATORS", "CREATED"}}
	for _, p := range projects {
		admins := make([]string, 0, len(p.Administrators))
		for _, a := range p.Administrators {
			admins = append(admins, a.Username)
		}
		rows = append(rows, []string{
			p.URL,
			p.Name,
			string(p.Type),
			strings.Join(admins, ", "),
			p.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if n := lipgloss.Width(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			style := lipgloss.NewStyle().Width(widths[j] + 2)
			if i == 0 {
				style = style.Inherit(headerStyle)
			}
			cells[j] = style.Render(cell)
		}
		fmt.Fprintln(w, strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
	}
}

func showProject(cmd *cobra.Command, args []string) error {
	svc, st, err := openService()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	p, err := svc.GetProject(ctx, args[0])
	if err != nil {
		return err
	}
	stats, err := svc.Statistics(ctx, args[0])
	if err != nil {
		return err
	}

	out, err := renderProject(p, stats, wordWrap)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// renderProject formats a project as markdown and renders it for the
// terminal.
func renderProject(p *management.ProjectView, stats map[string]any, wrap int) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", p.Name)
	fmt.Fprintf(&md, "*%s* · `%s`\n\n", p.Type, p.URL)
	if p.Description != "" {
		fmt.Fprintf(&md, "%s\n\n", p.Description)
	}

	if len(p.Categories) > 0 {
		md.WriteString("## Categories\n\n")
		for _, c := range p.Categories {
			fmt.Fprintf(&md, "- **%s**", c.Name)
			if c.KeyBinding != "" {
				fmt.Fprintf(&md, " (`%s`)", c.KeyBinding)
			}
			if c.Description != "" {
				fmt.Fprintf(&md, ": %s", c.Description)
			}
			md.WriteString("\n")
		}
		md.WriteString("\n")
	}

	md.WriteString("## Statistics\n\n")
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&md, "- %s: %v\n", k, stats[k])
	}
	md.WriteString("\n")

	if p.TalkMarkdown != "" {
		md.WriteString("## Talk\n\n")
		md.WriteString(p.TalkMarkdown)
		md.WriteString("\n")
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(md.String())
	if err != nil {
		return "", fmt.Errorf("failed to render project: %w", err)
	}
	return titleStyle.Render("Project "+p.URL) + "\n" + rendered, nil
}
