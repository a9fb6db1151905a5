package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/store"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Races       *store.RaceStore
	Annotations *store.AnnotationStore
	Betting     *store.BettingStore
	Stats       *store.StatsStore
	Version     string
}

// NewMCPServer creates an MCP server with every racenotes tool and resource
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"racenotes",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("racenotes: race cards, handicapping notes and betting outcomes from the race-data gateway."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_races",
			mcp.WithDescription("List the races held on a date, optionally at one venue."),
			mcp.WithString("date", mcp.Description("Race date, YYYY-MM-DD (default: today)")),
			mcp.WithString("venue", mcp.Description("Venue name filter")),
		),
		mcpListRaces(deps),
	)

	s.AddTool(
		mcp.NewTool("race_detail",
			mcp.WithDescription("Show one race with its runners in entry order."),
			mcp.WithNumber("race_id", mcp.Description("Race id"), mcp.Required()),
		),
		mcpRaceDetail(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_races",
			mcp.WithDescription("Ask the gateway to ingest race data for a date, then refresh the race list."),
			mcp.WithString("date", mcp.Description("Race date, YYYY-MM-DD (default: today)")),
			mcp.WithBoolean("force", mcp.Description("Re-ingest even if the date was already synced")),
		),
		mcpSyncRaces(deps),
	)

	s.AddTool(
		mcp.NewTool("list_annotations",
			mcp.WithDescription("List handicapping notes for a race and/or horse."),
			mcp.WithNumber("race_id", mcp.Description("Race id filter")),
			mcp.WithNumber("horse_id", mcp.Description("Horse id filter")),
		),
		mcpListAnnotations(deps),
	)

	s.AddTool(
		mcp.NewTool("add_annotation",
			mcp.WithDescription("Write a new note for a horse in a race."),
			mcp.WithNumber("race_id", mcp.Description("Race id"), mcp.Required()),
			mcp.WithNumber("horse_id", mcp.Description("Horse id"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Note text"), mcp.Required()),
		),
		mcpAddAnnotation(deps),
	)

	s.AddTool(
		mcp.NewTool("update_annotation",
			mcp.WithDescription("Change the text or visibility of an existing note."),
			mcp.WithNumber("id", mcp.Description("Annotation id"), mcp.Required()),
			mcp.WithString("content", mcp.Description("New note text")),
			mcp.WithBoolean("is_public", mcp.Description("Share the note")),
		),
		mcpUpdateAnnotation(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_annotation",
			mcp.WithDescription("Delete a note."),
			mcp.WithNumber("id", mcp.Description("Annotation id"), mcp.Required()),
		),
		mcpDeleteAnnotation(deps),
	)

	betTypes := make([]string, len(domain.BetTypes))
	for i, bt := range domain.BetTypes {
		betTypes[i] = string(bt)
	}
	s.AddTool(
		mcp.NewTool("record_bet",
			mcp.WithDescription("Record the outcome of a bet. Payout is ignored unless the bet won."),
			mcp.WithNumber("race_id", mcp.Description("Race id"), mcp.Required()),
			mcp.WithString("bet_type", mcp.Description("Bet type"), mcp.Required(), mcp.Enum(betTypes...)),
			mcp.WithString("bet_numbers", mcp.Description(`Runner numbers: "4", "3-7" or "1-5-9" depending on bet type`), mcp.Required()),
			mcp.WithNumber("amount", mcp.Description("Stake in yen, a multiple of 100"), mcp.Required()),
			mcp.WithBoolean("is_won", mcp.Description("Whether the bet won")),
			mcp.WithNumber("payout", mcp.Description("Payout in yen when won")),
		),
		mcpRecordBet(deps),
	)

	s.AddTool(
		mcp.NewTool("kpi",
			mcp.WithDescription("Show overall return on investment and hit rate."),
			mcp.WithString("from", mcp.Description("Start date, YYYY-MM-DD")),
			mcp.WithString("to", mcp.Description("End date, YYYY-MM-DD")),
		),
		mcpKPI(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"racenotes://races/current",
			"Current Races",
			mcp.WithResourceDescription("The race list last fetched, with its date and venue filter"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRaces(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"racenotes://betting/summary",
			"Betting Summary",
			mcp.WithResourceDescription("Totals, ROI and hit rate of the betting outcomes listed so far"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBettingSummary(deps),
	)

	return s
}

func mcpListRaces(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		races, err := deps.Races.FetchRaces(ctx, req.GetString("date", ""), req.GetString("venue", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("list races failed: %v", err)), nil
		}
		return mcpJSON(races)
	}
}

func mcpRaceDetail(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("race_id")
		if err != nil {
			return mcpError("race_id is required"), nil
		}
		d, err := deps.Races.FetchRaceDetail(ctx, int64(id))
		if err != nil {
			return mcpError(fmt.Sprintf("race detail failed: %v", err)), nil
		}
		return mcpJSON(d)
	}
}

func mcpSyncRaces(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Races.SyncRaceData(ctx, req.GetString("date", ""), req.GetBool("force", false))
		if err != nil {
			return mcpError(fmt.Sprintf("sync failed: %v", err)), nil
		}
		out := struct {
			Status  domain.SyncStatus `json:"status"`
			Message string            `json:"message"`
			Date    string            `json:"date"`
			Races   int               `json:"races"`
		}{res.Status, res.Message, deps.Races.CurrentDate(), len(deps.Races.Races())}
		if res.Failed() {
			b, err := json.Marshal(out)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
			}
			return mcpError(string(b)), nil
		}
		return mcpJSON(out)
	}
}

func mcpListAnnotations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := domain.AnnotationFilter{
			RaceID:  int64(req.GetInt("race_id", 0)),
			HorseID: int64(req.GetInt("horse_id", 0)),
		}
		notes, err := deps.Annotations.Fetch(ctx, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("list annotations failed: %v", err)), nil
		}
		if len(notes) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(notes)
	}
}

func mcpAddAnnotation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raceID, err := req.RequireInt("race_id")
		if err != nil {
			return mcpError("race_id is required"), nil
		}
		horseID, err := req.RequireInt("horse_id")
		if err != nil {
			return mcpError("horse_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		a, err := deps.Annotations.Create(ctx, int64(raceID), int64(horseID), content)
		if err != nil {
			return mcpError(fmt.Sprintf("add annotation failed: %v", err)), nil
		}
		return mcpJSON(a)
	}
}

// ensureLocal loads every annotation when id is not yet in the store, so
// update and delete can run from a fresh MCP session.
func ensureLocal(ctx context.Context, deps MCPDeps, id int64) error {
	for _, a := range deps.Annotations.All() {
		if a.ID == id {
			return nil
		}
	}
	_, err := deps.Annotations.Fetch(ctx, domain.AnnotationFilter{})
	return err
}

func mcpUpdateAnnotation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		var patch domain.AnnotationPatch
		if content, err := req.RequireString("content"); err == nil {
			patch.Content = &content
		}
		if public, err := req.RequireBool("is_public"); err == nil {
			patch.IsPublic = &public
		}
		if patch.Empty() {
			return mcpError("content or is_public is required"), nil
		}
		if err := ensureLocal(ctx, deps, int64(id)); err != nil {
			return mcpError(fmt.Sprintf("update annotation failed: %v", err)), nil
		}
		a, err := deps.Annotations.Update(ctx, int64(id), patch)
		if err != nil {
			return mcpError(fmt.Sprintf("update annotation failed: %v", err)), nil
		}
		return mcpJSON(a)
	}
}

func mcpDeleteAnnotation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := ensureLocal(ctx, deps, int64(id)); err != nil {
			return mcpError(fmt.Sprintf("delete annotation failed: %v", err)), nil
		}
		if err := deps.Annotations.Delete(ctx, int64(id)); err != nil {
			return mcpError(fmt.Sprintf("delete annotation failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted annotation %d", id)), nil
	}
}

func mcpRecordBet(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raceID, err := req.RequireInt("race_id")
		if err != nil {
			return mcpError("race_id is required"), nil
		}
		rawType, err := req.RequireString("bet_type")
		if err != nil {
			return mcpError("bet_type is required"), nil
		}
		betType, err := domain.ParseBetType(rawType)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		numbers, err := req.RequireString("bet_numbers")
		if err != nil {
			return mcpError("bet_numbers is required"), nil
		}
		amount, err := req.RequireInt("amount")
		if err != nil {
			return mcpError("amount is required"), nil
		}

		saved, err := deps.Betting.Record(ctx, domain.BettingOutcome{
			RaceID:  int64(raceID),
			BetType: betType,
			Numbers: numbers,
			Amount:  amount,
			IsWon:   req.GetBool("is_won", false),
			Payout:  req.GetInt("payout", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("record bet failed: %v", err)), nil
		}
		return mcpJSON(saved)
	}
}

func mcpKPI(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		k, err := deps.Stats.KPI(ctx, req.GetString("from", ""), req.GetString("to", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("kpi failed: %v", err)), nil
		}
		return mcpJSON(k)
	}
}

func mcpResourceRaces(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		// A fresh session shows the last saved snapshot until a fetch runs.
		deps.Races.Warm(ctx, deps.Races.CurrentDate(), "")
		st := deps.Races.State()
		out := struct {
			Date  string        `json:"date"`
			Venue string        `json:"venue,omitempty"`
			Races []domain.Race `json:"races"`
		}{st.CurrentDate, st.CurrentVenue, st.Races}
		if out.Races == nil {
			out.Races = []domain.Race{}
		}
		return jsonResource(req.Params.URI, out)
	}
}

func mcpResourceBettingSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sum := deps.Betting.Summary()
		out := struct {
			Bets     int    `json:"bets"`
			Wins     int    `json:"wins"`
			Staked   int    `json:"staked"`
			Returned int    `json:"returned"`
			ROI      string `json:"roi"`
			HitRate  string `json:"hit_rate"`
		}{sum.Bets, sum.Wins, sum.Staked, sum.Returned, sum.ROI.StringFixed(2), sum.HitRate.StringFixed(2)}
		return jsonResource(req.Params.URI, out)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
