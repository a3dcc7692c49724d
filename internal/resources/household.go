package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/server"
)

const (
	HouseholdURI = "cozi://household"
	ListsURI     = "cozi://lists"
)

// Household is the document served at HouseholdURI.
type Household struct {
	AccountID string        `json:"accountId"`
	People    []cozi.Person `json:"people"`
}

// RegisterHouseholdResources registers the household and lists resources.
func RegisterHouseholdResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	householdResource := mcp.NewResource(
		HouseholdURI,
		"Cozi Household",
		mcp.WithResourceDescription("Account id and members of the Cozi household"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(householdResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleHousehold(ctx, request, sc)
	})

	listsResource := mcp.NewResource(
		ListsURI,
		"Cozi Lists",
		mcp.WithResourceDescription("All shopping and to-do lists with their items"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(listsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleLists(ctx, request, sc)
	})

	return nil
}

func handleHousehold(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	client, err := sc.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("cozi session unavailable: %w", err)
	}

	people, err := client.GetPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get household members: %w", err)
	}

	return jsonContents(request.Params.URI, Household{AccountID: client.AccountID(), People: people})
}

func handleLists(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	client, err := sc.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("cozi session unavailable: %w", err)
	}

	lists, err := client.GetLists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lists: %w", err)
	}

	return jsonContents(request.Params.URI, lists)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
