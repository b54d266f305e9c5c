package store

// DisplaySettings controls how the explorer renders rows.
type DisplaySettings struct {
	PageSize      int    `json:"pageSize"`
	SortField     string `json:"sortField"`
	SortAscending bool   `json:"sortAscending"`
	ShowClosed    bool   `json:"showClosed"`
}

// DefaultDisplaySettings returns the settings used when nothing is persisted.
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		PageSize:  25,
		SortField: "volume",
	}
}

// AlertSettings drives the live trade alert rules.
type AlertSettings struct {
	Enabled            bool    `json:"enabled"`
	MinNotional        float64 `json:"minNotional"`
	PriceShockPct      float64 `json:"priceShockPct"`
	BurstCount         int     `json:"burstCount"`
	BurstWindowSeconds int     `json:"burstWindowSeconds"`
}

// DefaultAlertSettings returns the settings used when nothing is persisted.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		Enabled:            true,
		MinNotional:        10000,
		PriceShockPct:      5,
		BurstCount:         3,
		BurstWindowSeconds: 60,
	}
}

// BlacklistSettings hides tokens from the explorer. All matches are
// case-insensitive; keywords, websites and handles match as substrings.
type BlacklistSettings struct {
	Developers []string `json:"developers"`
	Contracts  []string `json:"contracts"`
	Keywords   []string `json:"keywords"`
	Websites   []string `json:"websites"`
	Handles    []string `json:"handles"`
}

// Empty reports whether no blacklist entry is configured.
func (b BlacklistSettings) Empty() bool {
	return len(b.Developers) == 0 && len(b.Contracts) == 0 && len(b.Keywords) == 0 &&
		len(b.Websites) == 0 && len(b.Handles) == 0
}

// QuickBuySettings holds the quick-buy amount for one token status.
type QuickBuySettings struct {
	// Amount is a decimal string in native units, e.g. "0.5"
	Amount string `json:"amount"`
	// Preset is the 1-based active fee preset
	Preset int `json:"preset"`
}

// PresetCount is the number of selectable fee presets.
const PresetCount = 3

// DefaultQuickBuySettings returns the settings used when nothing is persisted.
func DefaultQuickBuySettings() QuickBuySettings {
	return QuickBuySettings{Amount: "0.1", Preset: 1}
}
