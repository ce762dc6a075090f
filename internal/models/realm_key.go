package models

import (
	"fmt"
	"strings"
)

// Game version determines which Blizzard API namespace family a realm
// belongs to.
const (
	VersionRetail  = "retail"
	VersionClassic = "classic"
)

// RealmKey identifies one market partition: a realm in a region on a
// specific game version. All snapshot storage and querying is keyed by it.
type RealmKey struct {
	Region      string `json:"region"`
	Slug        string `json:"realm_slug"`
	GameVersion string `json:"game_version"`
}

// NewRealmKey normalizes the parts into a RealmKey. Realm slugs are
// lowercase with dashes (e.g. "area-52"); an empty version defaults to
// retail.
func NewRealmKey(region, slug, version string) RealmKey {
	if version == "" {
		version = VersionRetail
	}
	return RealmKey{
		Region:      strings.ToLower(strings.TrimSpace(region)),
		Slug:        strings.ToLower(strings.TrimSpace(slug)),
		GameVersion: strings.ToLower(strings.TrimSpace(version)),
	}
}

// Valid reports whether all three parts are present and the version is known.
func (k RealmKey) Valid() bool {
	if k.Region == "" || k.Slug == "" {
		return false
	}
	return k.GameVersion == VersionRetail || k.GameVersion == VersionClassic
}

// String renders the key in the "slug:region (version)" form used in logs.
func (k RealmKey) String() string {
	return fmt.Sprintf("%s:%s (%s)", k.Slug, k.Region, k.GameVersion)
}
