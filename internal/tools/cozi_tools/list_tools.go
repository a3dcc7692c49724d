package cozi_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/server"
	"github.com/teemow/cozictl/internal/tools/common"
)

func listTools(sc *server.ServerContext) []mcpserver.ServerTool {
	listListsTool := mcp.NewTool(ToolListLists,
		mcp.WithDescription("List all shopping and to-do lists of the Cozi household, including their items"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	getListTool := mcp.NewTool(ToolGetList,
		mcp.WithDescription("Get a single Cozi list with its items"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("list_id",
			mcp.Required(),
			mcp.Description("The ID of the list to retrieve (see cozi_list_lists)"),
		),
		mcp.WithBoolean("unchecked_only",
			mcp.Description("Only return items that are not checked off (default: false)"),
		),
	)

	return []mcpserver.ServerTool{
		{
			Tool: listListsTool,
			Handler: common.InstrumentedToolHandler(ToolListLists, cozi.OpListLists, sc,
				func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					return handleListLists(ctx, request, sc)
				}),
		},
		{
			Tool: getListTool,
			Handler: common.InstrumentedToolHandler(ToolGetList, cozi.OpGetList, sc,
				func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					return handleGetList(ctx, request, sc)
				}),
		},
	}
}

func handleListLists(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	lists, err := client.GetLists(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list lists: %v", err)), nil
	}
	return jsonResult(lists)
}

func handleGetList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	listID, err := common.RequiredString(args, "list_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	list, err := client.GetList(ctx, listID)
	if err != nil {
		if cozi.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("list %q not found", listID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get list: %v", err)), nil
	}

	if common.BoolArg(args, "unchecked_only", false) {
		open := make([]cozi.ListItem, 0, len(list.Items))
		for _, item := range list.Items {
			if !item.CheckedOff {
				open = append(open, item)
			}
		}
		list.Items = open
	}
	return jsonResult(list)
}

func peopleTools(sc *server.ServerContext) []mcpserver.ServerTool {
	listPeopleTool := mcp.NewTool(ToolListPeople,
		mcp.WithDescription("List the members of the Cozi household"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	return []mcpserver.ServerTool{
		{
			Tool: listPeopleTool,
			Handler: common.InstrumentedToolHandler(ToolListPeople, cozi.OpPeople, sc,
				func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					return handleListPeople(ctx, request, sc)
				}),
		},
	}
}

func handleListPeople(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	people, err := client.GetPeople(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list people: %v", err)), nil
	}
	return jsonResult(people)
}
