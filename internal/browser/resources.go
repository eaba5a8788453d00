// CLAUDE:SUMMARY Fails requests of blocked resource types on watched tabs while keeping the SPA's own document, script and API traffic.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// alwaysAllowed resource types are never blocked: the watched page renders
// its routes and comment form through them.
var alwaysAllowed = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeDocument: true,
	proto.NetworkResourceTypeScript:   true,
	proto.NetworkResourceTypeXHR:      true,
	proto.NetworkResourceTypeFetch:    true,
}

// blockList is a set of CDP resource types parsed from configuration names
// such as "images", "font" or "Stylesheet".
type blockList map[proto.NetworkResourceType]bool

func parseBlockList(names []string) blockList {
	bl := make(blockList, len(names))
	for _, n := range names {
		n = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(n)), "s")
		switch n {
		case "image":
			bl[proto.NetworkResourceTypeImage] = true
		case "font":
			bl[proto.NetworkResourceTypeFont] = true
		case "media":
			bl[proto.NetworkResourceTypeMedia] = true
		case "stylesheet":
			bl[proto.NetworkResourceTypeStylesheet] = true
		case "websocket":
			bl[proto.NetworkResourceTypeWebSocket] = true
		case "ping":
			bl[proto.NetworkResourceTypePing] = true
		}
	}
	return bl
}

func (bl blockList) blocks(t proto.NetworkResourceType) bool {
	return bl[t] && !alwaysAllowed[t]
}

// applyResourceBlocking fails the requests whose type is in names. It
// returns nil when nothing is blockable; otherwise the router must be
// stopped when the tab closes.
func applyResourceBlocking(page *rod.Page, names []string) *rod.HijackRouter {
	bl := parseBlockList(names)
	if len(bl) == 0 {
		return nil
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if bl.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
