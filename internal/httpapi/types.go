package httpapi

import "tabhost-server/internal/browser"

type createTabRequest struct {
	TenantID string `json:"tenant_id"`
	GroupKey string `json:"group_key"`
	URL      string `json:"url"`
}

type createTabResponse struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

type listTabsResponse struct {
	Tabs []browser.TabInfo `json:"tabs"`
}

// navigateRequest drives either a URL load or a history action; exactly one
// of URL or Action must be set.
type navigateRequest struct {
	TenantID string `json:"tenant_id"`
	URL      string `json:"url"`
	// Action is one of "back", "forward", "reload".
	Action string `json:"action"`
}

type navigateResponse struct {
	URL      string `json:"url"`
	RefCount int    `json:"ref_count"`
}

// clickRequest targets an element by ref or by CSS selector; exactly one of
// the two must be set.
type clickRequest struct {
	TenantID string `json:"tenant_id"`
	Ref      string `json:"ref"`
	Selector string `json:"selector"`
}

type typeRequest struct {
	TenantID string `json:"tenant_id"`
	Ref      string `json:"ref"`
	Text     string `json:"text"`
	// Submit presses Enter after typing.
	Submit bool `json:"submit"`
}

type hoverRequest struct {
	TenantID string `json:"tenant_id"`
	Ref      string `json:"ref"`
}

type scrollRequest struct {
	TenantID string `json:"tenant_id"`
	// Direction is "up" or "down".
	Direction string `json:"direction"`
	// Amount in pixels; defaults to 600.
	Amount float64 `json:"amount"`
}

type actionResponse struct {
	OK       bool   `json:"ok"`
	URL      string `json:"url"`
	RefCount int    `json:"ref_count"`
}

type snapshotResponse struct {
	URL         string `json:"url"`
	Content     string `json:"content"`
	Truncated   bool   `json:"truncated"`
	TotalLength int    `json:"total_length"`
	HasMore     bool   `json:"has_more"`
	NextOffset  int    `json:"next_offset"`
	RefCount    int    `json:"ref_count"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Engine  string `json:"engine"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}
