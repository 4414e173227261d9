package provider

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LinkChecker confirms outbound links exist before they are handed to a
// user. Unreachable links fall back to the resolver's recorded homepage.
type LinkChecker struct {
	resolver *Resolver
	client   *http.Client
}

// NewLinkChecker creates a LinkChecker. A nil client gets a 5s timeout.
func NewLinkChecker(resolver *Resolver, client *http.Client) *LinkChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &LinkChecker{resolver: resolver, client: client}
}

// Reachable reports whether a HEAD (then GET) on url returns < 400.
func (c *LinkChecker) Reachable(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return false
		}
		resp, err := c.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close() //nolint:errcheck
		if resp.StatusCode < 400 {
			return true
		}
		// Some sites reject HEAD but serve GET.
		if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusForbidden {
			return false
		}
	}
	return false
}

// Outbound returns link when it is reachable, otherwise the provider's
// homepage from the rule table. Rule homepages are returned without a
// check; only homepage guesses are probed. Returns "" when nothing works.
func (c *LinkChecker) Outbound(ctx context.Context, link, providerName string) string {
	if link != "" && c.Reachable(ctx, link) {
		return link
	}

	res := c.resolver.Resolve(providerName)
	if res.Matched {
		if link != "" {
			zap.L().Info("provider: link unreachable, using recorded homepage",
				zap.String("link", link),
				zap.String("homepage", res.RedirectURL),
			)
		}
		return res.RedirectURL
	}
	if res.RedirectURL != "" && c.Reachable(ctx, res.RedirectURL) {
		return res.RedirectURL
	}
	return ""
}
