package ghrelease

import (
	"context"
	"fmt"
	"os"

	"github.com/chulingera2025/tron-launcher/internal/config"
	tronhttp "github.com/chulingera2025/tron-launcher/internal/downloaders/http"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// GitReleaseDownloader fetches one named asset of a GitHub release. job.URL
// names the repository ("owner/repo" or a github.com URL).
//
// Job metadata: asset (file name, default FullNode.jar), version (tag, empty
// for latest), apiBase (API root override), downloadURLFormat (fallback URL
// with a %s for the tag when the release lists no such asset).
type GitReleaseDownloader struct{}

func (d *GitReleaseDownloader) ValidateJob(ctx context.Context, job *utils.TronJob) error {
	owner, repo, err := parseGitHubURL(job.URL)
	if err != nil {
		return err
	}
	if job.OutputPath == "" {
		return fmt.Errorf("no output path for release asset")
	}
	if _, err := os.Stat(job.OutputPath); err == nil {
		return utils.ErrJobSkipped
	}
	job.Metadata["owner"] = owner
	job.Metadata["repo"] = repo
	return nil
}

func (d *GitReleaseDownloader) BuildJob(ctx context.Context, job *utils.TronJob) error {
	log := utils.GetLogger("github-release/build")
	owner := job.Metadata["owner"].(string)
	repo := job.Metadata["repo"].(string)
	version, _ := job.Metadata["version"].(string)
	assetName, _ := job.Metadata["asset"].(string)
	if assetName == "" {
		assetName = config.FullNodeJar
	}
	apiBase, _ := job.Metadata["apiBase"].(string)
	if apiBase == "" {
		apiBase = config.GitHubAPIBase
	}
	client := utils.NewTronHTTPClient(job.HTTPClientConfig)

	rel, err := getGitHubRelease(ctx, client, apiBase, owner, repo, version)
	if err != nil {
		return fmt.Errorf("error fetching release info: %w", err)
	}
	downloadURL := ""
	if asset, ok := selectAsset(rel, assetName); ok {
		downloadURL = asset.BrowserDownloadURL
	} else if format, _ := job.Metadata["downloadURLFormat"].(string); format != "" {
		downloadURL = fmt.Sprintf(format, rel.TagName)
		log.Debug().Str("tag", rel.TagName).Msg("asset not listed, using fallback URL")
	} else {
		return fmt.Errorf("release %s has no asset named %s", rel.TagName, assetName)
	}

	info, err := tronhttp.Probe(ctx, client, downloadURL)
	if err != nil {
		return err
	}
	job.Metadata["tagName"] = rel.TagName
	job.Metadata["remote"] = info
	log.Info().Str("tag", rel.TagName).Str("url", downloadURL).Int64("size", info.Size).Msg("release resolved")
	return nil
}
