package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails every request whose resource type is listed. The
// returned router must be stopped when the page closes.
func blockResources(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	blocked := blockSet(types)
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if blocked[string(h.Request.Type())] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

// blockSet maps config names (plural, any case) to CDP resource types.
func blockSet(types []string) map[string]bool {
	out := make(map[string]bool, len(types))
	for _, t := range types {
		switch t = strings.ToLower(strings.TrimSpace(t)); t {
		case "images", "image":
			out[string(proto.NetworkResourceTypeImage)] = true
		case "fonts", "font":
			out[string(proto.NetworkResourceTypeFont)] = true
		case "media":
			out[string(proto.NetworkResourceTypeMedia)] = true
		case "stylesheets", "stylesheet":
			out[string(proto.NetworkResourceTypeStylesheet)] = true
		case "xhr":
			out[string(proto.NetworkResourceTypeXHR)] = true
		case "eventsource":
			out[string(proto.NetworkResourceTypeEventSource)] = true
		case "websocket":
			out[string(proto.NetworkResourceTypeWebSocket)] = true
		default:
			// CDP type names are capitalised: "Script", "XHR", "Fetch".
			if t != "" {
				out[strings.ToUpper(t[:1])+t[1:]] = true
			}
		}
	}
	return out
}
