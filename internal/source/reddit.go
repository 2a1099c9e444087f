package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/lazylama/memeswap/internal/model"
)

// SafeSubreddits is the default set polled for trending images.
var SafeSubreddits = []string{"wholesomememes", "memes", "aww", "funny"}

// imageHosts and imageExts mark posts that link straight to an image.
var (
	imageHosts = []string{"i.redd.it", "i.imgur.com"}
	imageExts  = []string{".jpg", ".jpeg", ".png", ".webp"}
)

// RedditSource lists trending image posts from public subreddit listings.
type RedditSource struct {
	client  *http.Client
	baseURL string
	agent   string
	perSub  int
}

func NewRedditSource(timeout time.Duration, userAgent string) *RedditSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = "memeswap/1.0"
	}
	return &RedditSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://www.reddit.com",
		agent:   userAgent,
		perSub:  15,
	}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string  `json:"title"`
				URL       string  `json:"url"`
				Subreddit string  `json:"subreddit"`
				Score     int     `json:"score"`
				Over18    bool    `json:"over_18"`
				CreatedAt float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Trending fetches hot image posts across the subreddits, deduped by URL
// and sorted by score. A failing subreddit is skipped, not fatal.
func (s *RedditSource) Trending(ctx context.Context, subreddits []string, limit int) ([]model.Candidate, error) {
	if len(subreddits) == 0 {
		subreddits = SafeSubreddits
	}
	if limit <= 0 {
		limit = 20
	}

	seen := make(map[string]bool)
	candidates := make([]model.Candidate, 0, limit)
	now := time.Now().UTC()

	for _, sub := range subreddits {
		listing, err := s.fetchListing(ctx, sub)
		if err != nil {
			zlog.Logger.Warn().Err(err).Str("subreddit", sub).Msg("Failed to fetch subreddit listing")
			continue
		}

		for _, child := range listing.Data.Children {
			post := child.Data
			if !isImageURL(post.URL) || seen[post.URL] {
				continue
			}
			seen[post.URL] = true
			candidates = append(candidates, model.Candidate{
				Title:     post.Title,
				URL:       post.URL,
				Source:    post.Subreddit,
				Score:     post.Score,
				NSFW:      post.Over18,
				FetchedAt: now,
			})
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no subreddit listing reachable", model.ErrSourceUnavailable)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates, nil
}

func (s *RedditSource) fetchListing(ctx context.Context, subreddit string) (*redditListing, error) {
	url := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", s.baseURL, subreddit, s.perSub)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.agent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d from r/%s", resp.StatusCode, subreddit)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func isImageURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range imageExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, host := range imageHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}
