package douyin

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
)

var routerDataPattern = regexp.MustCompile(`(?s)window\._ROUTER_DATA\s*=\s*(.+?)</script>`)

const evalTimeout = 2 * time.Second

var errNoRouterData = errors.New("share page has no _ROUTER_DATA")

// evalRouterData evaluates the page's `window._ROUTER_DATA = {...}` literal in
// a throwaway runtime and returns it as JSON. The literal is JS, not JSON
// (undefined values, unquoted keys), so it cannot go straight to encoding/json.
func evalRouterData(page []byte) ([]byte, error) {
	m := routerDataPattern.FindSubmatch(page)
	if len(m) < 2 {
		return nil, errNoRouterData
	}
	expr := strings.TrimSpace(string(m[1]))
	expr = strings.TrimRight(expr, "; \n\r\t")

	vm := goja.New()
	timer := time.AfterFunc(evalTimeout, func() { vm.Interrupt("router data evaluation timed out") })
	defer timer.Stop()

	out, err := vm.RunString("JSON.stringify((" + expr + "))")
	if err != nil {
		return nil, fmt.Errorf("evaluate _ROUTER_DATA: %w", err)
	}
	if goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, errNoRouterData
	}
	return []byte(out.String()), nil
}

type routerData struct {
	LoaderData map[string]json.RawMessage `json:"loaderData"`
}

type videoPage struct {
	VideoInfoRes *struct {
		ItemList   []awemeItem `json:"item_list"`
		FilterList []struct {
			FilterReason string `json:"filter_reason"`
			DetailMsg    string `json:"detail_msg"`
		} `json:"filter_list"`
	} `json:"videoInfoRes"`
}

type awemeItem struct {
	AwemeID string `json:"aweme_id"`
	Desc    string `json:"desc"`
	Author  struct {
		Nickname string `json:"nickname"`
	} `json:"author"`
	Video struct {
		PlayAddr struct {
			URI     string   `json:"uri"`
			URLList []string `json:"url_list"`
		} `json:"play_addr"`
		Cover struct {
			URLList []string `json:"url_list"`
		} `json:"cover"`
		// milliseconds
		Duration int `json:"duration"`
	} `json:"video"`
}

// firstItem finds the first loaderData route carrying a video item. Routes
// are visited in key order so the choice is stable.
func firstItem(raw []byte) (awemeItem, error) {
	var rd routerData
	if err := json.Unmarshal(raw, &rd); err != nil {
		return awemeItem{}, fmt.Errorf("decode _ROUTER_DATA: %w", err)
	}
	keys := make([]string, 0, len(rd.LoaderData))
	for k := range rd.LoaderData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filtered string
	for _, k := range keys {
		var page videoPage
		if err := json.Unmarshal(rd.LoaderData[k], &page); err != nil || page.VideoInfoRes == nil {
			continue
		}
		if len(page.VideoInfoRes.ItemList) > 0 {
			return page.VideoInfoRes.ItemList[0], nil
		}
		for _, f := range page.VideoInfoRes.FilterList {
			if f.DetailMsg != "" {
				filtered = f.DetailMsg
			} else if filtered == "" {
				filtered = f.FilterReason
			}
		}
	}
	if filtered != "" {
		return awemeItem{}, fmt.Errorf("video unavailable: %s", filtered)
	}
	return awemeItem{}, errors.New("no video item in _ROUTER_DATA")
}

// mediaURL prefers the listed play address with the watermark path removed.
func (it awemeItem) mediaURL() string {
	for _, u := range it.Video.PlayAddr.URLList {
		if u == "" {
			continue
		}
		return strings.Replace(u, "/playwm/", "/play/", 1)
	}
	if it.Video.PlayAddr.URI != "" {
		return "https://aweme.snssdk.com/aweme/v1/play/?video_id=" + it.Video.PlayAddr.URI + "&ratio=720p&line=0"
	}
	return ""
}
