package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tabhost-server/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// Rod drives Chrome over the DevTools protocol. One Rod instance owns the
// browser process; each tenant session gets its own incognito context.
type Rod struct {
	cfg config.BrowserConfig

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// NewRod creates an unconnected adapter; call Start before use.
func NewRod(cfg config.BrowserConfig) *Rod {
	return &Rod{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (r *Rod) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		// Stale connection; drop it and reconnect.
		_ = r.browser.Close()
		r.browser = nil
		r.controlURL = ""
	}

	controlURL := r.cfg.DebuggerURL
	if controlURL == "" && len(r.cfg.Launch) > 0 {
		bin := r.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(r.cfg.IsHeadless())
		for _, rawFlag := range r.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let Rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(r.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	r.browser = browser
	r.controlURL = controlURL
	return nil
}

// Connected reports whether the browser is currently reachable.
func (r *Rod) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.browser != nil
}

// NewContext creates an incognito browsing context for one session.
func (r *Rod) NewContext(ctx context.Context) (Context, error) {
	r.mu.Lock()
	browser := r.browser
	r.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	return &rodContext{cfg: r.cfg, browser: incognito}, nil
}

// Shutdown closes the underlying browser and every context it owns.
func (r *Rod) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	r.controlURL = ""
	return err
}

type rodContext struct {
	cfg     config.BrowserConfig
	browser *rod.Browser
}

func (c *rodContext) NewPage(ctx context.Context) (Page, error) {
	page, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	// Best effort; a failed override just leaves the default viewport.
	_ = proto.EmulationSetDeviceMetricsOverride{
		Width:             c.cfg.GetViewportWidth(),
		Height:            c.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(page)

	return &rodPage{cfg: c.cfg, page: page}, nil
}

func (c *rodContext) Close() error {
	return c.browser.Close()
}

type rodPage struct {
	cfg  config.BrowserConfig
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) Back(ctx context.Context) error {
	return p.page.Context(ctx).Timeout(p.cfg.NavigationTimeout()).NavigateBack()
}

func (p *rodPage) Forward(ctx context.Context) error {
	return p.page.Context(ctx).Timeout(p.cfg.NavigationTimeout()).NavigateForward()
}

func (p *rodPage) Reload(ctx context.Context) error {
	return p.page.Context(ctx).Timeout(p.cfg.NavigationTimeout()).Reload()
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) AccessibilityTree(ctx context.Context) (string, error) {
	res, err := proto.AccessibilityGetFullAXTree{}.Call(p.page.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("accessibility tree: %w", err)
	}
	return renderAXTree(res.Nodes), nil
}

func (p *rodPage) Locate(ctx context.Context, role, name string, nth int) (Locator, error) {
	res, err := proto.AccessibilityGetFullAXTree{}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("accessibility tree: %w", err)
	}

	// Walk in the same document order the tree renderer uses so the nth
	// match lines up with the occurrence index assigned at snapshot time.
	seen := 0
	var backendID proto.DOMBackendNodeID
	for _, n := range walkAXNodes(res.Nodes) {
		if n.role != role || n.name != name {
			continue
		}
		if seen == nth {
			backendID = n.backendID
			break
		}
		seen++
	}
	if backendID == 0 {
		return nil, fmt.Errorf("element %s %q (occurrence %d) not on page", role, name, nth)
	}

	described, err := proto.DOMDescribeNode{BackendNodeID: backendID}.Call(p.page.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("describe node: %w", err)
	}
	el, err := p.page.Context(ctx).ElementFromNode(described.Node)
	if err != nil {
		return nil, fmt.Errorf("resolve element: %w", err)
	}
	return &rodLocator{cfg: p.cfg, el: el}, nil
}

func (p *rodPage) Query(ctx context.Context, selector string) (Locator, error) {
	el, err := p.page.Context(ctx).Timeout(p.cfg.ActionTimeout()).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}
	return &rodLocator{cfg: p.cfg, el: el}, nil
}

func (p *rodPage) Scroll(ctx context.Context, deltaY float64) error {
	return p.page.Context(ctx).Mouse.Scroll(0, deltaY, 1)
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, nil)
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

type rodLocator struct {
	cfg config.BrowserConfig
	el  *rod.Element
}

func (l *rodLocator) Click(ctx context.Context) error {
	el := l.el.Context(ctx).Timeout(l.cfg.ActionTimeout())
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (l *rodLocator) Fill(ctx context.Context, text string) error {
	el := l.el.Context(ctx).Timeout(l.cfg.ActionTimeout())
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (l *rodLocator) Hover(ctx context.Context) error {
	return l.el.Context(ctx).Timeout(l.cfg.ActionTimeout()).Hover()
}

func (l *rodLocator) Press(ctx context.Context, key string) error {
	k, ok := keyNames[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return l.el.Context(ctx).Timeout(l.cfg.ActionTimeout()).Type(k)
}

var keyNames = map[string]input.Key{
	"Enter":  input.Enter,
	"Tab":    input.Tab,
	"Escape": input.Escape,
}

// axEntry is one renderable accessibility node in document order.
type axEntry struct {
	role      string
	name      string
	depth     int
	backendID proto.DOMBackendNodeID
}

// walkAXNodes flattens the CDP node list depth-first. Ignored nodes and
// nameless generic containers are skipped; both the tree renderer and the
// locator consume this walk so their document orders always agree.
func walkAXNodes(nodes []*proto.AccessibilityAXNode) []axEntry {
	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	isChild := make(map[proto.AccessibilityAXNodeID]bool)
	for _, n := range nodes {
		if n == nil {
			continue
		}
		byID[n.NodeID] = n
		for _, c := range n.ChildIDs {
			isChild[c] = true
		}
	}

	var out []axEntry
	visited := make(map[proto.AccessibilityAXNodeID]bool)

	var walk func(id proto.AccessibilityAXNodeID, depth int)
	walk = func(id proto.AccessibilityAXNodeID, depth int) {
		n, ok := byID[id]
		if !ok || visited[id] {
			return
		}
		visited[id] = true

		role, name := "", ""
		if n.Role != nil {
			role = n.Role.Value.Str()
		}
		if n.Name != nil {
			name = sanitizeAXName(n.Name.Value.Str())
		}

		childDepth := depth
		if !n.Ignored && !(role == "" || role == "none" || role == "generic" && name == "") {
			out = append(out, axEntry{role: role, name: name, depth: depth, backendID: n.BackendDOMNodeID})
			childDepth = depth + 1
		}
		for _, c := range n.ChildIDs {
			walk(c, childDepth)
		}
	}

	for _, n := range nodes {
		if n != nil && !isChild[n.NodeID] {
			walk(n.NodeID, 0)
		}
	}
	return out
}

// sanitizeAXName normalizes an accessible name so the one-node-per-line
// quoted grammar can represent it losslessly: double quotes become single
// quotes and whitespace runs collapse to single spaces. The walk applies it
// once, so rendered lines, ref-table entries, and Locate comparisons all see
// the same string.
func sanitizeAXName(name string) string {
	name = strings.ReplaceAll(name, `"`, "'")
	return strings.Join(strings.Fields(name), " ")
}

// renderAXTree renders the walk as indented `role "name"` lines, the text
// contract consumed by the refs package. Names are already sanitized, so no
// escaping is needed inside the quotes.
func renderAXTree(nodes []*proto.AccessibilityAXNode) string {
	var b strings.Builder
	for _, e := range walkAXNodes(nodes) {
		b.WriteString(strings.Repeat("  ", e.depth))
		b.WriteString(e.role)
		if e.name != "" {
			b.WriteString(` "`)
			b.WriteString(e.name)
			b.WriteString(`"`)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
