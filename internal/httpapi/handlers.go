package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"tabhost-server/internal/browser"
	"tabhost-server/internal/driver"
	"tabhost-server/internal/refs"
	"tabhost-server/internal/snapshot"

	"github.com/gin-gonic/gin"
)

func (s *Server) createTab(c *gin.Context) {
	var req createTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", browser.ErrInvalidInput, err))
		return
	}

	tab, err := s.registry.OpenTab(c.Request.Context(), req.TenantID, req.GroupKey, req.URL)
	if err != nil {
		writeError(c, err)
		return
	}

	s.rec.Record("tab_open", req.TenantID, tab.ID, gin.H{"group_key": req.GroupKey, "url": req.URL})
	c.JSON(http.StatusOK, createTabResponse{TabID: tab.ID, URL: tab.Page().URL()})
}

func (s *Server) listTabs(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		writeError(c, fmt.Errorf("%w: tenant_id is required", browser.ErrInvalidInput))
		return
	}
	tabs := s.registry.ListTabs(tenantID, c.Query("group_key"))
	c.JSON(http.StatusOK, listTabsResponse{Tabs: tabs})
}

func (s *Server) navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", browser.ErrInvalidInput, err))
		return
	}
	if (req.URL == "") == (req.Action == "") {
		writeError(c, fmt.Errorf("%w: exactly one of url or action is required", browser.ErrInvalidInput))
		return
	}
	if req.URL != "" {
		if err := browser.ValidateURL(req.URL); err != nil {
			writeError(c, err)
			return
		}
	}

	tabID := c.Param("id")
	var resp navigateResponse
	err := s.registry.WithTab(c.Request.Context(), req.TenantID, tabID, func(tab *browser.TabState) error {
		ctx := c.Request.Context()
		page := tab.Page()

		switch {
		case req.URL != "":
			if err := page.Navigate(ctx, req.URL); err != nil {
				return fmt.Errorf("navigate: %w", err)
			}
			tab.RecordVisit(page.URL())
		case req.Action == "back":
			if err := page.Back(ctx); err != nil {
				return fmt.Errorf("back: %w", err)
			}
			tab.RecordInteraction()
		case req.Action == "forward":
			if err := page.Forward(ctx); err != nil {
				return fmt.Errorf("forward: %w", err)
			}
			tab.RecordInteraction()
		case req.Action == "reload":
			if err := page.Reload(ctx); err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			tab.RecordInteraction()
		default:
			return fmt.Errorf("%w: unknown action %q", browser.ErrInvalidInput, req.Action)
		}

		if err := s.refreshRefs(c, tab); err != nil {
			return err
		}
		resp = navigateResponse{URL: page.URL(), RefCount: len(tab.Refs())}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.rec.Record("navigate", req.TenantID, tabID, gin.H{"url": req.URL, "action": req.Action})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) snapshot(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		writeError(c, fmt.Errorf("%w: tenant_id is required", browser.ErrInvalidInput))
		return
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, fmt.Errorf("%w: offset must be an integer", browser.ErrInvalidInput))
			return
		}
		offset = n
	}

	tabID := c.Param("id")
	var resp snapshotResponse
	err := s.registry.WithTab(c.Request.Context(), tenantID, tabID, func(tab *browser.TabState) error {
		// One tree capture backs both the ref table and the annotated
		// text, so refs always point at what the caller sees.
		tree, err := tab.Page().AccessibilityTree(c.Request.Context())
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		table := refs.Build(tree)
		tab.SetRefs(table)

		win := snapshot.WindowN(refs.Annotate(tree, table), offset,
			s.cfg.Snapshot.GetMaxChars(), s.cfg.Snapshot.GetTailChars())
		resp = snapshotResponse{
			URL:         tab.Page().URL(),
			Content:     win.Chunk,
			Truncated:   win.Truncated,
			TotalLength: win.TotalLength,
			HasMore:     win.HasMore,
			NextOffset:  win.NextOffset,
			RefCount:    len(table),
		}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) click(c *gin.Context) {
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", browser.ErrInvalidInput, err))
		return
	}
	if (req.Ref == "") == (req.Selector == "") {
		writeError(c, fmt.Errorf("%w: exactly one of ref or selector is required", browser.ErrInvalidInput))
		return
	}

	tabID := c.Param("id")
	var resp actionResponse
	err := s.registry.WithTab(c.Request.Context(), req.TenantID, tabID, func(tab *browser.TabState) error {
		var loc driver.Locator
		var err error
		if req.Ref != "" {
			loc, err = s.locate(c, tab, req.Ref)
		} else {
			loc, err = tab.Page().Query(c.Request.Context(), req.Selector)
		}
		if err != nil {
			return err
		}
		target := req.Ref
		if target == "" {
			target = req.Selector
		}
		if err := loc.Click(c.Request.Context()); err != nil {
			return fmt.Errorf("click %s: %w", target, err)
		}
		tab.RecordInteraction()

		if err := s.refreshRefs(c, tab); err != nil {
			return err
		}
		resp = actionResponse{OK: true, URL: tab.Page().URL(), RefCount: len(tab.Refs())}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.rec.Record("click", req.TenantID, tabID, gin.H{"ref": req.Ref, "selector": req.Selector})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) typeText(c *gin.Context) {
	var req typeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", browser.ErrInvalidInput, err))
		return
	}
	if req.Ref == "" {
		writeError(c, fmt.Errorf("%w: ref is required", browser.ErrInvalidInput))
		return
	}

	tabID := c.Param("id")
	var resp actionResponse
	err := s.registry.WithTab(c.Request.Context(), req.TenantID, tabID, func(tab *browser.TabState) error {
		loc, err := s.locate(c, tab, req.Ref)
		if err != nil {
			return err
		}
		if err := loc.Fill(c.Request.Context(), req.Text); err != nil {
			return fmt.Errorf("type into %s: %w", req.Ref, err)
		}
		if req.Submit {
			if err := loc.Press(c.Request.Context(), "Enter"); err != nil {
				return fmt.Errorf("submit %s: %w", req.Ref, err)
			}
		}
		tab.RecordInteraction()

		if err := s.refreshRefs(c, tab); err != nil {
			return err
		}
		resp = actionResponse{OK: true, URL: tab.Page().URL(), RefCount: len(tab.Refs())}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.rec.Record("type", req.TenantID, tabID, gin.H{"ref": req.Ref, "submit": req.Submit})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) hover(c *gin.Context) {
	var req hoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", browser.ErrInvalidInput, err))
		return
	}
	if req.Ref == "" {
		writeError(c, fmt.Errorf("%w: ref is required", browser.ErrInvalidInput))
		return
	}

	tabID := c.Param("id")
	var resp actionResponse
	err := s.registry.WithTab(c.Request.Context(), req.TenantID, tabID, func(tab *browser.TabState) error {
		loc, err := s.locate(c, tab, req.Ref)
		if err != nil {
			return err
		}
		if err := loc.Hover(c.Request.Context()); err != nil {
			return fmt.Errorf("hover %s: %w", req.Ref, err)
		}
		tab.RecordInteraction()
		// Hovering does not mutate the page, so the ref table stands.
		resp = actionResponse{OK: true, URL: tab.Page().URL(), RefCount: len(tab.Refs())}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.rec.Record("hover", req.TenantID, tabID, gin.H{"ref": req.Ref})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) scroll(c *gin.Context) {
	var req scrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", browser.ErrInvalidInput, err))
		return
	}

	amount := req.Amount
	if amount <= 0 {
		amount = 600
	}
	var deltaY float64
	switch req.Direction {
	case "down":
		deltaY = amount
	case "up":
		deltaY = -amount
	default:
		writeError(c, fmt.Errorf("%w: direction must be \"up\" or \"down\"", browser.ErrInvalidInput))
		return
	}

	tabID := c.Param("id")
	var resp actionResponse
	err := s.registry.WithTab(c.Request.Context(), req.TenantID, tabID, func(tab *browser.TabState) error {
		if err := tab.Page().Scroll(c.Request.Context(), deltaY); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		tab.RecordInteraction()
		resp = actionResponse{OK: true, URL: tab.Page().URL(), RefCount: len(tab.Refs())}
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	s.rec.Record("scroll", req.TenantID, tabID, gin.H{"direction": req.Direction, "amount": amount})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) screenshot(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		writeError(c, fmt.Errorf("%w: tenant_id is required", browser.ErrInvalidInput))
		return
	}

	var png []byte
	err := s.registry.WithTab(c.Request.Context(), tenantID, c.Param("id"), func(tab *browser.TabState) error {
		data, err := tab.Page().Screenshot(c.Request.Context())
		if err != nil {
			return fmt.Errorf("screenshot: %w", err)
		}
		png = data
		return nil
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) closeTab(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		writeError(c, fmt.Errorf("%w: tenant_id is required", browser.ErrInvalidInput))
		return
	}
	tabID := c.Param("id")
	s.registry.CloseTab(tenantID, tabID)
	s.rec.Record("tab_close", tenantID, tabID, nil)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) closeGroup(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		writeError(c, fmt.Errorf("%w: tenant_id is required", browser.ErrInvalidInput))
		return
	}
	key := c.Param("key")
	s.registry.CloseGroup(tenantID, key)
	s.rec.Record("group_close", tenantID, "", gin.H{"group_key": key})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) closeSession(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	s.registry.CloseSession(tenantID)
	s.rec.Record("session_close", tenantID, "", nil)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Stats())
}

func (s *Server) health(c *gin.Context) {
	if !s.drv.Connected() {
		c.JSON(http.StatusServiceUnavailable, healthResponse{
			Status:  "degraded",
			Engine:  "disconnected",
			Version: s.cfg.Server.Version,
		})
		return
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Engine:  "connected",
		Version: s.cfg.Server.Version,
	})
}

// locate resolves a ref against the tab's current table and returns a live
// element handle. A stale ref surfaces the re-snapshot hint from the refs
// package.
func (s *Server) locate(c *gin.Context, tab *browser.TabState, ref string) (driver.Locator, error) {
	entry, err := refs.Resolve(tab.Refs(), ref)
	if err != nil {
		return nil, err
	}
	loc, err := tab.Page().Locate(c.Request.Context(), entry.Role, entry.Name, entry.Occurrence)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", ref, err)
	}
	return loc, nil
}

// refreshRefs rebuilds the ref table from a fresh tree capture. Called only
// after a mutating operation succeeds; a failure here leaves the prior table
// in place and surfaces as an engine error.
func (s *Server) refreshRefs(c *gin.Context, tab *browser.TabState) error {
	tree, err := tab.Page().AccessibilityTree(c.Request.Context())
	if err != nil {
		return fmt.Errorf("refresh refs: %w", err)
	}
	tab.SetRefs(refs.Build(tree))
	return nil
}
