package quote

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-automation response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockStatus     BlockType = "http_status"
	BlockWAF        BlockType = "waf_rejection"
	BlockCaptcha    BlockType = "captcha"
	BlockCloudflare BlockType = "cloudflare"
	BlockJSShell    BlockType = "js_shell"
)

var wafMarkers = []string{
	"request rejected",
	"the requested url was rejected",
	"access denied",
	"support id",
	"acesso negado",
}

// DetectBlock checks a remote response for signs of anti-bot protection.
// Any status at or above 400 counts as a block: the remote never uses error
// statuses for business outcomes.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode >= 400 {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
		return true, BlockStatus
	}

	lower := strings.ToLower(string(body))

	for _, m := range wafMarkers {
		if strings.Contains(lower, m) {
			return true, BlockWAF
		}
	}

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}

	// JS-only shell: tiny page that only bounces the browser elsewhere.
	if len(body) < 2000 && strings.Contains(lower, "meta http-equiv=\"refresh\"") {
		return true, BlockJSShell
	}

	return false, BlockNone
}
