package ghrelease

import (
	"context"
	"fmt"

	tronhttp "github.com/chulingera2025/tron-launcher/internal/downloaders/http"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

func (d *GitReleaseDownloader) Download(ctx context.Context, job *utils.TronJob) error {
	info, ok := job.Metadata["remote"].(tronhttp.RemoteInfo)
	if !ok {
		return fmt.Errorf("job %s was not built", job.ID)
	}
	client := utils.NewTronHTTPClient(job.HTTPClientConfig)
	progressCh, stop := tronhttp.TrackProgress(job, info.Size)
	err := tronhttp.Transfer(ctx, client, info, job.OutputPath, "", job.Connections, progressCh)
	stop()
	return err
}
