package driver

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted in-memory driver for tests. Trees maps URLs to the
// accessibility text a page at that URL reports; error fields inject
// failures into specific operations.
type Fake struct {
	mu sync.Mutex

	// Trees maps URL -> accessibility tree text.
	Trees map[string]string
	// DefaultTree is reported for URLs absent from Trees.
	DefaultTree string

	ContextErr  error
	PageErr     error
	NavigateErr error
	TreeErr     error
	ActionErr   error

	// ContextBlock, when non-nil, makes NewContext wait until the channel
	// closes. Lets tests hold an engine call in flight.
	ContextBlock chan struct{}

	// Ops records every driver call in order, e.g. "navigate https://a.test".
	Ops []string

	contexts int
	pages    int
	down     bool
}

// NewFake returns a Fake with empty scripting.
func NewFake() *Fake {
	return &Fake{Trees: map[string]string{}}
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	f.Ops = append(f.Ops, op)
	f.mu.Unlock()
}

// OpenContexts returns how many contexts are currently open.
func (f *Fake) OpenContexts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contexts
}

// OpenPages returns how many pages are currently open.
func (f *Fake) OpenPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down
}

func (f *Fake) NewContext(ctx context.Context) (Context, error) {
	if f.ContextErr != nil {
		return nil, f.ContextErr
	}
	if f.ContextBlock != nil {
		<-f.ContextBlock
	}
	f.mu.Lock()
	f.contexts++
	f.mu.Unlock()
	f.record("new-context")
	return &fakeContext{drv: f}, nil
}

func (f *Fake) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	f.down = true
	f.mu.Unlock()
	f.record("shutdown")
	return nil
}

type fakeContext struct {
	drv    *Fake
	closed bool
}

func (c *fakeContext) NewPage(ctx context.Context) (Page, error) {
	if c.drv.PageErr != nil {
		return nil, c.drv.PageErr
	}
	c.drv.mu.Lock()
	c.drv.pages++
	c.drv.mu.Unlock()
	c.drv.record("new-page")
	return &fakePage{drv: c.drv}, nil
}

func (c *fakeContext) Close() error {
	if !c.closed {
		c.closed = true
		c.drv.mu.Lock()
		c.drv.contexts--
		c.drv.mu.Unlock()
		c.drv.record("close-context")
	}
	return nil
}

type fakePage struct {
	drv *Fake

	mu      sync.Mutex
	url     string
	history []string
	forward []string
	closed  bool
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.drv.record("navigate " + url)
	if p.drv.NavigateErr != nil {
		return p.drv.NavigateErr
	}
	p.mu.Lock()
	if p.url != "" {
		p.history = append(p.history, p.url)
	}
	p.url = url
	p.forward = nil
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Back(ctx context.Context) error {
	p.drv.record("back")
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return nil
	}
	p.forward = append(p.forward, p.url)
	p.url = p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	return nil
}

func (p *fakePage) Forward(ctx context.Context) error {
	p.drv.record("forward")
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.forward) == 0 {
		return nil
	}
	p.history = append(p.history, p.url)
	p.url = p.forward[len(p.forward)-1]
	p.forward = p.forward[:len(p.forward)-1]
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.drv.record("reload")
	return nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) AccessibilityTree(ctx context.Context) (string, error) {
	p.drv.record("tree")
	if p.drv.TreeErr != nil {
		return "", p.drv.TreeErr
	}
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()
	if tree, ok := p.drv.Trees[url]; ok {
		return tree, nil
	}
	return p.drv.DefaultTree, nil
}

func (p *fakePage) Locate(ctx context.Context, role, name string, nth int) (Locator, error) {
	p.drv.record(fmt.Sprintf("locate %s %q %d", role, name, nth))
	return &fakeLocator{drv: p.drv}, nil
}

func (p *fakePage) Query(ctx context.Context, selector string) (Locator, error) {
	p.drv.record("query " + selector)
	return &fakeLocator{drv: p.drv}, nil
}

func (p *fakePage) Scroll(ctx context.Context, deltaY float64) error {
	p.drv.record(fmt.Sprintf("scroll %.0f", deltaY))
	if p.drv.ActionErr != nil {
		return p.drv.ActionErr
	}
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.drv.record("screenshot")
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	closed := p.closed
	p.closed = true
	p.mu.Unlock()
	if !closed {
		p.drv.mu.Lock()
		p.drv.pages--
		p.drv.mu.Unlock()
		p.drv.record("close-page")
	}
	return nil
}

type fakeLocator struct {
	drv *Fake
}

func (l *fakeLocator) Click(ctx context.Context) error {
	l.drv.record("click")
	return l.drv.ActionErr
}

func (l *fakeLocator) Fill(ctx context.Context, text string) error {
	l.drv.record("fill " + text)
	return l.drv.ActionErr
}

func (l *fakeLocator) Hover(ctx context.Context) error {
	l.drv.record("hover")
	return l.drv.ActionErr
}

func (l *fakeLocator) Press(ctx context.Context, key string) error {
	l.drv.record("press " + key)
	return l.drv.ActionErr
}
