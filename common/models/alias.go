package models

// Alias declares that requests under Src are logically redirected to
// Dest at the CDN edge, except for sub-paths matching an exclude
// pattern.
type Alias struct {
	// Src is the path being aliased from, relative to CDN root
	Src string `json:"src"`

	// Dest is the target of the alias, relative to CDN root
	Dest string `json:"dest"`

	// ExcludePaths are patterns for which the alias is not resolved,
	// treated as unanchored regexes against the path remainder
	ExcludePaths []string `json:"exclude_paths,omitempty"`
}

// ListingItem declares the allowed values of one variable used in
// generating "listing" responses under a path.
type ListingItem struct {
	Var    string   `json:"var"`
	Values []string `json:"values"`
}

// CDNConfig is the consolidated configuration document deployed to the
// key-value store consumed by edge nodes.
type CDNConfig struct {
	// Listing maps paths to a variable name and its allowed values
	Listing map[string]ListingItem `json:"listing"`

	OriginAlias     []Alias `json:"origin_alias"`
	ReleaseverAlias []Alias `json:"releasever_alias"`
	RhuiAlias       []Alias `json:"rhui_alias"`
}

// AllAliases returns the aliases of every kind in declaration order.
func (c *CDNConfig) AllAliases() []Alias {
	out := make([]Alias, 0, len(c.OriginAlias)+len(c.ReleaseverAlias)+len(c.RhuiAlias))
	out = append(out, c.OriginAlias...)
	out = append(out, c.ReleaseverAlias...)
	out = append(out, c.RhuiAlias...)
	return out
}
