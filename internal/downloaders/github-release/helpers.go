package ghrelease

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

var repoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+)/?.*$`),
	regexp.MustCompile(`^github\.com/([^/]+)/([^/]+)/?.*$`),
	regexp.MustCompile(`^([^/]+)/([^/]+)$`),
}

type releaseAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

func parseGitHubURL(url string) (string, string, error) {
	url = strings.TrimSuffix(strings.TrimSpace(url), "/")
	for _, pattern := range repoPatterns {
		matches := pattern.FindStringSubmatch(url)
		if len(matches) >= 3 {
			return matches[1], matches[2], nil
		}
	}
	return "", "", fmt.Errorf("invalid GitHub repository format: %s", url)
}

// getGitHubRelease fetches the latest release, or the one tagged version
// when it is set. Transient API failures are retried with backoff.
func getGitHubRelease(ctx context.Context, client utils.HTTPDoer, apiBase, owner, repo, version string) (*release, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimSuffix(apiBase, "/"), owner, repo)
	if version != "" {
		apiURL = fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", strings.TrimSuffix(apiBase, "/"), owner, repo, url.PathEscape(version))
	}
	var rel release
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("error creating API request: %w", err))
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error making API request: %w", err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("API request failed with status code: %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("API request failed with status code: %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
			return backoff.Permanent(fmt.Errorf("error decoding API response: %w", err))
		}
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)); err != nil {
		return nil, err
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("release has no tag name")
	}
	return &rel, nil
}

// selectAsset returns the asset called name, matched case-insensitively.
func selectAsset(rel *release, name string) (releaseAsset, bool) {
	for _, asset := range rel.Assets {
		if strings.EqualFold(asset.Name, name) && asset.BrowserDownloadURL != "" {
			return asset, true
		}
	}
	return releaseAsset{}, false
}
