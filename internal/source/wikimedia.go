package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/model"
)

// WikiSource searches Wikimedia for celebrity photos, with a DuckDuckGo
// instant-answer fallback when too few turn up.
type WikiSource struct {
	client  *http.Client
	wikiAPI string
	ddgAPI  string
	agent   string
}

func NewWikiSource(timeout time.Duration, userAgent string) *WikiSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "memeswap/1.0"
	}
	return &WikiSource{
		client:  &http.Client{Timeout: timeout},
		wikiAPI: "https://en.wikipedia.org/w/api.php",
		ddgAPI:  "https://api.duckduckgo.com/",
		agent:   userAgent,
	}
}

// Search returns up to limit image candidates for a celebrity name. The
// acceptability filter runs on the result downstream; here only obvious
// non-photos (wrong extension) are dropped.
func (s *WikiSource) Search(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	candidates, err := s.searchWikimedia(ctx, name, limit)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("name", name).Msg("Wikimedia search failed")
	}

	if len(candidates) < 5 {
		ddg, ddgErr := s.searchDuckDuckGo(ctx, name, limit)
		if ddgErr != nil {
			zlog.Logger.Warn().Err(ddgErr).Str("name", name).Msg("DuckDuckGo fallback failed")
		}
		seen := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			seen[c.URL] = true
		}
		for _, c := range ddg {
			if !seen[c.URL] {
				candidates = append(candidates, c)
				seen[c.URL] = true
			}
		}
	}

	if len(candidates) == 0 {
		if err != nil {
			return nil, fmt.Errorf("%w: %s", model.ErrSourceUnavailable, err)
		}
		return nil, nil
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *WikiSource) searchWikimedia(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	var searchResp struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	err := s.getJSON(ctx, s.wikiAPI, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {name},
		"format":   {"json"},
		"srlimit":  {"1"},
	}, &searchResp)
	if err != nil {
		return nil, err
	}
	if len(searchResp.Query.Search) == 0 {
		return nil, fmt.Errorf("no wikipedia page for %q", name)
	}
	pageTitle := searchResp.Query.Search[0].Title

	var imagesResp struct {
		Query struct {
			Pages map[string]struct {
				Images []struct {
					Title string `json:"title"`
				} `json:"images"`
			} `json:"pages"`
		} `json:"query"`
	}
	err = s.getJSON(ctx, s.wikiAPI, url.Values{
		"action":  {"query"},
		"titles":  {pageTitle},
		"prop":    {"images"},
		"format":  {"json"},
		"imlimit": {"50"},
	}, &imagesResp)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	candidates := make([]model.Candidate, 0, limit)
	for _, page := range imagesResp.Query.Pages {
		for _, img := range page.Images {
			if !hasPhotoExt(img.Title) {
				continue
			}
			imgURL, err := s.resolveImageURL(ctx, img.Title)
			if err != nil || imgURL == "" {
				continue
			}
			candidates = append(candidates, model.Candidate{
				Title:     img.Title,
				URL:       imgURL,
				Source:    "wikimedia",
				FetchedAt: now,
			})
			if len(candidates) >= limit {
				return candidates, nil
			}
		}
	}
	return candidates, nil
}

func (s *WikiSource) resolveImageURL(ctx context.Context, imageTitle string) (string, error) {
	var urlResp struct {
		Query struct {
			Pages map[string]struct {
				ImageInfo []struct {
					URL string `json:"url"`
				} `json:"imageinfo"`
			} `json:"pages"`
		} `json:"query"`
	}
	err := s.getJSON(ctx, s.wikiAPI, url.Values{
		"action": {"query"},
		"titles": {imageTitle},
		"prop":   {"imageinfo"},
		"iiprop": {"url"},
		"format": {"json"},
	}, &urlResp)
	if err != nil {
		return "", err
	}

	for _, page := range urlResp.Query.Pages {
		if len(page.ImageInfo) > 0 {
			return page.ImageInfo[0].URL, nil
		}
	}
	return "", nil
}

func (s *WikiSource) searchDuckDuckGo(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	var resp struct {
		Image         string `json:"Image"`
		RelatedTopics []struct {
			Icon struct {
				URL string `json:"URL"`
			} `json:"Icon"`
		} `json:"RelatedTopics"`
	}
	err := s.getJSON(ctx, s.ddgAPI, url.Values{
		"q":      {name},
		"format": {"json"},
		"t":      {"memeswap"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var candidates []model.Candidate
	if resp.Image != "" {
		candidates = append(candidates, model.Candidate{Title: name, URL: resp.Image, Source: "duckduckgo", FetchedAt: now})
	}
	for _, topic := range resp.RelatedTopics {
		iconURL := topic.Icon.URL
		if iconURL == "" || strings.HasSuffix(iconURL, ".ico") {
			continue
		}
		if strings.HasPrefix(iconURL, "/") {
			iconURL = "https://duckduckgo.com" + iconURL
		}
		candidates = append(candidates, model.Candidate{Title: name, URL: iconURL, Source: "duckduckgo", FetchedAt: now})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}

func (s *WikiSource) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.agent)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, endpoint)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func hasPhotoExt(title string) bool {
	lower := strings.ToLower(title)
	return strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg") ||
		strings.HasSuffix(lower, ".png")
}
