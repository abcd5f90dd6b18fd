package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockableTypes maps CDP resource types to their config names. Image
// is deliberately absent: screenshots are the run's evidence, and an
// operator listing "images" must not blank them.
var blockableTypes = map[string]string{
	"font":       "fonts",
	"media":      "media",
	"stylesheet": "stylesheets",
}

// buildBlockSet normalizes the configured type names and strips the
// ones that may never be blocked.
func buildBlockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	delete(set, "images")
	delete(set, "image")
	return set
}

// applyResourceBlocking intercepts page requests and fails the
// configured resource types to keep scans light.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blockSet := buildBlockSet(types)

	router := page.HijackRequests()

	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()

	return nil
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	if name, ok := blockableTypes[lower]; ok {
		return blockSet[name]
	}
	return blockSet[lower]
}
