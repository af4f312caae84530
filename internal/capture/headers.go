package capture

import (
	"context"
	"encoding/base64"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// extraHeaders sends h with every request of the tab.
func extraHeaders(h map[string]any) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		return network.SetExtraHTTPHeaders(network.Headers(h)).Do(ctx)
	})
}

func basicAuthHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
