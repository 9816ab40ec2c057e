package scan

import (
	"context"

	"github.com/yacobolo/cssaudit/internal/fetch"
)

// discover walks the site breadth first from baseURL and returns at most
// maxPages URLs in visit order. Each URL is fetched for links at most once.
// A page whose links cannot be read is still returned. Link fetches use the
// same timeout and user agent as page fetches.
func (c *Coordinator) discover(ctx context.Context, baseURL string, maxPages int, excl exclusions, opts fetch.Options) ([]string, error) {
	start, err := fetch.Normalize(baseURL)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{start: true}
	frontier := []string{start}
	var pages []string

	for len(frontier) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := frontier[0]
		frontier = frontier[1:]
		pages = append(pages, current)
		if len(pages) >= maxPages {
			break
		}

		links, err := c.fetcher.DiscoverLinks(ctx, current, opts)
		if err != nil {
			c.logger.Warn("link discovery failed", "url", current, "error", err)
			continue
		}
		for _, link := range links {
			if seen[link] || excl.Match(link) {
				continue
			}
			seen[link] = true
			frontier = append(frontier, link)
		}
	}

	c.logger.Debug("discovery finished", "base_url", start, "pages", len(pages))
	return pages, nil
}
