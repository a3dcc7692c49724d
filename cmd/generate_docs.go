package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/server"
	"github.com/teemow/cozictl/internal/tools/cozi_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command introspects the registered tools and the result types and outputs
their documentation in markdown format, ensuring the documentation is always
accurate and in sync with the actual tool implementations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(stdout, stderr io.Writer, outputFile string) error {
	// Introspection only: the connector is never called.
	serverContext, err := server.NewServerContext(context.Background(), server.Options{
		Connect: func(context.Context) (*cozi.Client, error) {
			return nil, errors.New("no session during documentation generation")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = serverContext.Shutdown()
	}()

	serverTools := cozi_tools.Tools(serverContext)
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}

	schemas, err := resultSchemasMarkdown()
	if err != nil {
		return err
	}
	markdown := generateToolsMarkdown(tools) + schemas

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(stderr, "Documentation written to: %s\n", outputFile)
		return nil
	}
	_, err = io.WriteString(stdout, markdown)
	return err
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document provides a complete reference of all tools available when running cozictl as an MCP server.\n")
	sb.WriteString("All tools are read-only.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	toolsByCategory := groupToolsByCategory(tools)

	categories := make([]string, 0, len(toolsByCategory))
	for category := range toolsByCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	sb.WriteString("## Table of Contents\n\n")
	for _, category := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, anchor(category))
	}
	sb.WriteString("- [Result Schemas](#result-schemas)\n\n")

	sb.WriteString("## Authentication\n\n")
	sb.WriteString("The server logs in with `COZI_USERNAME` and `COZI_PASSWORD` on the first tool call. ")
	sb.WriteString("Expired sessions are renewed automatically; a failed login is reported as a tool error and retried on the next call.\n\n")

	for _, category := range categories {
		categoryTools := toolsByCategory[category]
		sort.Slice(categoryTools, func(i, j int) bool {
			return categoryTools[i].Name < categoryTools[j].Name
		})

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range categoryTools {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func anchor(title string) string {
	return strings.ToLower(strings.ReplaceAll(title, " ", "-"))
}

func groupToolsByCategory(tools []mcp.Tool) map[string][]mcp.Tool {
	categories := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		categories[category] = append(categories[category], tool)
	}
	return categories
}

func getCategoryFromToolName(name string) string {
	switch {
	case strings.HasPrefix(name, "cozi_get_calendar_"):
		return "Calendar Tools"
	case name == cozi_tools.ToolListPeople:
		return "Household Tools"
	case strings.HasPrefix(name, "cozi_"):
		return "List Tools"
	default:
		return "Other"
	}
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		propNames := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			propMap, ok := tool.InputSchema.Properties[name].(map[string]any)
			if !ok {
				continue
			}

			requiredStr := "optional"
			if slices.Contains(tool.InputSchema.Required, name) {
				requiredStr = "required"
			}

			fmt.Fprintf(&sb, "- `%s` (%s, %s): ", name, getPropertyType(propMap), requiredStr)
			if desc, ok := propMap["description"].(string); ok {
				sb.WriteString(desc)
			} else {
				fmt.Fprintf(&sb, "%s parameter", getPropertyType(propMap))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}

// resultSchemas are the typed values tools return, in documentation order.
var resultSchemas = []struct {
	title string
	value any
}{
	{"List", &cozi.List{}},
	{"Person", &cozi.Person{}},
	{"CalendarItem", &cozi.CalendarItem{}},
}

// resultSchemasMarkdown renders a JSON Schema section for each result type.
func resultSchemasMarkdown() (string, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}

	var sb strings.Builder
	sb.WriteString("## Result Schemas\n\n")
	sb.WriteString("Unknown upstream fields are passed through unchanged next to the fields below.\n\n")
	for _, rs := range resultSchemas {
		schema := reflector.Reflect(rs.value)
		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode %s schema: %w", rs.title, err)
		}
		fmt.Fprintf(&sb, "### %s\n\n```json\n%s\n```\n\n", rs.title, out)
	}
	return sb.String(), nil
}
