package blizzard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"wow-guild-mcp/internal/services/market"
)

// wireAuction is one auction as the upstream returns it. The realm auction
// house nests the item and uses buyout totals; the commodity endpoint uses a
// flat item ID and per-unit prices, and carries no seller at all.
type wireAuction struct {
	ID   int64 `json:"id"`
	Item struct {
		ID int64 `json:"id"`
	} `json:"item"`
	Quantity  int64   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Buyout    float64 `json:"buyout"`
	Seller    *struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"seller"`
}

type auctionsResponse struct {
	Auctions []wireAuction `json:"auctions"`
}

func (a *wireAuction) toListing() (market.Listing, bool) {
	l := market.Listing{
		AuctionID: a.ID,
		ItemID:    a.Item.ID,
		Quantity:  a.Quantity,
	}
	switch {
	case a.UnitPrice > 0:
		l.UnitPrice = a.UnitPrice
	case a.Buyout > 0 && a.Quantity > 0:
		l.UnitPrice = a.Buyout / float64(a.Quantity)
	default:
		// Bid-only auctions have no committed price; skip them.
		return market.Listing{}, false
	}
	if a.Seller != nil {
		if a.Seller.Name != "" {
			l.Seller = a.Seller.Name
		} else if a.Seller.ID != 0 {
			l.Seller = strconv.FormatInt(a.Seller.ID, 10)
		}
	}
	return l, l.ItemID != 0
}

// ConnectedRealmID resolves a realm slug to its connected-realm ID, the key
// the auction endpoints are addressed by.
func (c *Client) ConnectedRealmID(ctx context.Context, realmSlug string) (int64, error) {
	slug := strings.ToLower(strings.TrimSpace(realmSlug))
	if slug == "" {
		return 0, &BadRequestError{Message: "realm slug is required"}
	}
	var realm struct {
		ConnectedRealm struct {
			Href string `json:"href"`
		} `json:"connected_realm"`
	}
	endpoint := "/data/wow/realm/" + url.PathEscape(slug)
	if err := c.fetch(ctx, endpoint, nil, &realm); err != nil {
		return 0, err
	}
	id, err := idFromHref(realm.ConnectedRealm.Href)
	if err != nil {
		return 0, fmt.Errorf("realm %q: %w", slug, err)
	}
	return id, nil
}

// idFromHref extracts the trailing numeric ID from an API link such as
// "https://us.api.blizzard.com/data/wow/connected-realm/121?namespace=...".
func idFromHref(href string) (int64, error) {
	if href == "" {
		return 0, fmt.Errorf("connected realm link missing")
	}
	trimmed := href
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	last := trimmed[strings.LastIndexByte(trimmed, '/')+1:]
	id, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed connected realm link %q", href)
	}
	return id, nil
}

// Auctions fetches the full active auction listing for a connected realm.
func (c *Client) Auctions(ctx context.Context, connectedRealmID int64) ([]market.Listing, error) {
	var body auctionsResponse
	endpoint := fmt.Sprintf("/data/wow/connected-realm/%d/auctions", connectedRealmID)
	if err := c.fetch(ctx, endpoint, nil, &body); err != nil {
		return nil, err
	}
	return toListings(body.Auctions), nil
}

// Commodities fetches the region-wide commodity auction listing (retail
// only; stackable materials trade region-wide rather than per realm).
func (c *Client) Commodities(ctx context.Context) ([]market.Listing, error) {
	var body auctionsResponse
	if err := c.fetch(ctx, "/data/wow/auctions/commodities", nil, &body); err != nil {
		return nil, err
	}
	return toListings(body.Auctions), nil
}

func toListings(auctions []wireAuction) []market.Listing {
	listings := make([]market.Listing, 0, len(auctions))
	for i := range auctions {
		if l, ok := auctions[i].toListing(); ok {
			listings = append(listings, l)
		}
	}
	return listings
}

// GuildRoster is the trimmed guild roster returned to tool callers.
type GuildRoster struct {
	Guild   string         `json:"guild"`
	Realm   string         `json:"realm"`
	Faction string         `json:"faction,omitempty"`
	Members []RosterMember `json:"members"`
}

type RosterMember struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Class int    `json:"playable_class,omitempty"`
	Rank  int    `json:"rank"`
}

// GetGuildRoster fetches a guild's member list. Pass-through: one upstream
// call, trimmed response.
func (c *Client) GetGuildRoster(ctx context.Context, realmSlug, guildSlug string) (*GuildRoster, error) {
	realm := strings.ToLower(strings.TrimSpace(realmSlug))
	guild := strings.ToLower(strings.TrimSpace(guildSlug))
	if realm == "" || guild == "" {
		return nil, &BadRequestError{Message: "realm and guild are required"}
	}
	var body struct {
		Guild struct {
			Name    string `json:"name"`
			Faction struct {
				Name string `json:"name"`
			} `json:"faction"`
		} `json:"guild"`
		Members []struct {
			Character struct {
				Name          string `json:"name"`
				Level         int    `json:"level"`
				PlayableClass struct {
					ID int `json:"id"`
				} `json:"playable_class"`
			} `json:"character"`
			Rank int `json:"rank"`
		} `json:"members"`
	}
	endpoint := fmt.Sprintf("/data/wow/guild/%s/%s/roster", url.PathEscape(realm), url.PathEscape(guild))
	if err := c.fetch(ctx, endpoint, nil, &body); err != nil {
		return nil, err
	}
	roster := &GuildRoster{
		Guild:   body.Guild.Name,
		Realm:   realm,
		Faction: body.Guild.Faction.Name,
		Members: make([]RosterMember, 0, len(body.Members)),
	}
	for _, m := range body.Members {
		roster.Members = append(roster.Members, RosterMember{
			Name:  m.Character.Name,
			Level: m.Character.Level,
			Class: m.Character.PlayableClass.ID,
			Rank:  m.Rank,
		})
	}
	return roster, nil
}

// CharacterProfile is the trimmed character summary.
type CharacterProfile struct {
	Name             string `json:"name"`
	Realm            string `json:"realm"`
	Level            int    `json:"level"`
	Class            string `json:"character_class,omitempty"`
	Race             string `json:"race,omitempty"`
	Faction          string `json:"faction,omitempty"`
	AverageItemLevel int    `json:"average_item_level"`
	GuildName        string `json:"guild,omitempty"`
}

// GetCharacterProfile fetches one character's profile summary.
func (c *Client) GetCharacterProfile(ctx context.Context, realmSlug, name string) (*CharacterProfile, error) {
	realm := strings.ToLower(strings.TrimSpace(realmSlug))
	char := strings.ToLower(strings.TrimSpace(name))
	if realm == "" || char == "" {
		return nil, &BadRequestError{Message: "realm and character name are required"}
	}
	var body struct {
		Name           string `json:"name"`
		Level          int    `json:"level"`
		CharacterClass struct {
			Name string `json:"name"`
		} `json:"character_class"`
		Race struct {
			Name string `json:"name"`
		} `json:"race"`
		Faction struct {
			Name string `json:"name"`
		} `json:"faction"`
		EquippedItemLevel int `json:"equipped_item_level"`
		Guild             struct {
			Name string `json:"name"`
		} `json:"guild"`
	}
	endpoint := fmt.Sprintf("/profile/wow/character/%s/%s", url.PathEscape(realm), url.PathEscape(char))
	if err := c.fetch(ctx, endpoint, nil, &body); err != nil {
		return nil, err
	}
	return &CharacterProfile{
		Name:             body.Name,
		Realm:            realm,
		Level:            body.Level,
		Class:            body.CharacterClass.Name,
		Race:             body.Race.Name,
		Faction:          body.Faction.Name,
		AverageItemLevel: body.EquippedItemLevel,
		GuildName:        body.Guild.Name,
	}, nil
}

// RealmStatus is the trimmed realm summary.
type RealmStatus struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Region   string `json:"region"`
	Timezone string `json:"timezone,omitempty"`
	Type     string `json:"type,omitempty"`
	Category string `json:"category,omitempty"`
}

// GetRealmStatus fetches basic realm information.
func (c *Client) GetRealmStatus(ctx context.Context, realmSlug string) (*RealmStatus, error) {
	slug := strings.ToLower(strings.TrimSpace(realmSlug))
	if slug == "" {
		return nil, &BadRequestError{Message: "realm slug is required"}
	}
	var body struct {
		Name     string `json:"name"`
		Slug     string `json:"slug"`
		Timezone string `json:"timezone"`
		Type     struct {
			Name string `json:"name"`
		} `json:"type"`
		Category string `json:"category"`
	}
	if err := c.fetch(ctx, "/data/wow/realm/"+url.PathEscape(slug), nil, &body); err != nil {
		return nil, err
	}
	return &RealmStatus{
		Name:     body.Name,
		Slug:     body.Slug,
		Region:   c.opts.Region,
		Timezone: body.Timezone,
		Type:     body.Type.Name,
		Category: body.Category,
	}, nil
}

// ItemDetails is the trimmed item summary.
type ItemDetails struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Quality       string `json:"quality,omitempty"`
	ItemClass     string `json:"item_class,omitempty"`
	ItemSubclass  string `json:"item_subclass,omitempty"`
	Level         int    `json:"level"`
	RequiredLevel int    `json:"required_level"`
	PurchasePrice int64  `json:"purchase_price"`
	SellPrice     int64  `json:"sell_price"`
}

// GetItemDetails fetches static item data by ID.
func (c *Client) GetItemDetails(ctx context.Context, itemID int64) (*ItemDetails, error) {
	if itemID <= 0 {
		return nil, &BadRequestError{Message: "item id must be positive"}
	}
	var body struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Quality struct {
			Name string `json:"name"`
		} `json:"quality"`
		ItemClass struct {
			Name string `json:"name"`
		} `json:"item_class"`
		ItemSubclass struct {
			Name string `json:"name"`
		} `json:"item_subclass"`
		Level         int   `json:"level"`
		RequiredLevel int   `json:"required_level"`
		PurchasePrice int64 `json:"purchase_price"`
		SellPrice     int64 `json:"sell_price"`
	}
	endpoint := fmt.Sprintf("/data/wow/item/%d", itemID)
	if err := c.fetch(ctx, endpoint, nil, &body); err != nil {
		return nil, err
	}
	return &ItemDetails{
		ID:            body.ID,
		Name:          body.Name,
		Quality:       body.Quality.Name,
		ItemClass:     body.ItemClass.Name,
		ItemSubclass:  body.ItemSubclass.Name,
		Level:         body.Level,
		RequiredLevel: body.RequiredLevel,
		PurchasePrice: body.PurchasePrice,
		SellPrice:     body.SellPrice,
	}, nil
}
