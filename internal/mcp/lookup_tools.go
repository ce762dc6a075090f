package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"wow-guild-mcp/internal/services/blizzard"
)

// lookupErr maps an upstream failure to a tool result. Not-found style
// errors become plain text so the agent can react; everything else is an
// error result labelled with its failure category.
func lookupErr(name string, err error) *mcplib.CallToolResult {
	var bad *blizzard.BadRequestError
	if errors.As(err, &bad) {
		return resultText(fmt.Sprintf("%s: upstream rejected the request: %s", name, bad.Message))
	}
	return resultErr(fmt.Errorf("%s: %s: %w", name, blizzard.ErrorKind(err), err))
}

// ─── get_guild_roster ─────────────────────────────────────────────────────────

func (s *Server) toolGetGuildRoster() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_guild_roster",
		mcplib.WithDescription("Fetch a guild's member list from the Blizzard API: character names, levels, classes, and guild ranks."),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug the guild is on, e.g. \"stormrage\""),
			mcplib.Required(),
		),
		mcplib.WithString("guild",
			mcplib.Description("Guild name slug, lowercase with dashes, e.g. \"the-horde-council\""),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetGuildRoster}
}

func (s *Server) handleGetGuildRoster(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	realm, _ := stringArg(req, "realm")
	guild, _ := stringArg(req, "guild")
	if realm == "" || guild == "" {
		return resultErr(errors.New("get_guild_roster: realm and guild are required")), nil
	}

	roster, err := s.lookup.GetGuildRoster(ctx, realm, guild)
	s.observe("get_guild_roster", started, err)
	if err != nil {
		return lookupErr("get_guild_roster", err), nil
	}

	result, err := resultJSON(roster)
	if err != nil {
		return resultErr(fmt.Errorf("get_guild_roster: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_character_profile ────────────────────────────────────────────────────

func (s *Server) toolGetCharacterProfile() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_character_profile",
		mcplib.WithDescription("Fetch one character's profile summary: level, class, race, faction, equipped item level, and guild."),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug the character is on, e.g. \"stormrage\""),
			mcplib.Required(),
		),
		mcplib.WithString("name",
			mcplib.Description("Character name"),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetCharacterProfile}
}

func (s *Server) handleGetCharacterProfile(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	realm, _ := stringArg(req, "realm")
	name, _ := stringArg(req, "name")
	if realm == "" || name == "" {
		return resultErr(errors.New("get_character_profile: realm and name are required")), nil
	}

	profile, err := s.lookup.GetCharacterProfile(ctx, realm, name)
	s.observe("get_character_profile", started, err)
	if err != nil {
		return lookupErr("get_character_profile", err), nil
	}

	result, err := resultJSON(profile)
	if err != nil {
		return resultErr(fmt.Errorf("get_character_profile: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_realm_status ─────────────────────────────────────────────────────────

func (s *Server) toolGetRealmStatus() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_realm_status",
		mcplib.WithDescription("Fetch basic information about a realm: display name, timezone, type, and population category."),
		mcplib.WithString("realm",
			mcplib.Description("Realm slug, e.g. \"area-52\""),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetRealmStatus}
}

func (s *Server) handleGetRealmStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	realm, _ := stringArg(req, "realm")
	if realm == "" {
		return resultErr(errors.New("get_realm_status: realm is required")), nil
	}

	status, err := s.lookup.GetRealmStatus(ctx, realm)
	s.observe("get_realm_status", started, err)
	if err != nil {
		return lookupErr("get_realm_status", err), nil
	}

	result, err := resultJSON(status)
	if err != nil {
		return resultErr(fmt.Errorf("get_realm_status: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_item_details ─────────────────────────────────────────────────────────

func (s *Server) toolGetItemDetails() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_item_details",
		mcplib.WithDescription("Fetch static item data by ID: name, quality, item class, level requirements, and vendor prices (in copper)."),
		mcplib.WithNumber("item_id",
			mcplib.Description("The item ID, e.g. 168487"),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetItemDetails}
}

func (s *Server) handleGetItemDetails(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	started := time.Now()
	itemID := int64(intArg(req, "item_id", 0))
	if itemID <= 0 {
		return resultErr(errors.New("get_item_details: item_id is required")), nil
	}

	item, err := s.lookup.GetItemDetails(ctx, itemID)
	s.observe("get_item_details", started, err)
	if err != nil {
		return lookupErr("get_item_details", err), nil
	}

	result, err := resultJSON(item)
	if err != nil {
		return resultErr(fmt.Errorf("get_item_details: serialise: %w", err)), nil
	}
	return result, nil
}
