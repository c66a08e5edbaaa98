package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chulingera2025/tron-launcher/internal/archive"
	"github.com/chulingera2025/tron-launcher/internal/config"
	tronhttp "github.com/chulingera2025/tron-launcher/internal/downloaders/http"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// SnapshotDownloader provisions chain data from the fastest mirror.
//
// Job metadata:
//
//	kind        "lite" or "full"
//	dataDir     extraction root, the node's -d directory
//	databaseDir skip when this directory already has content
//	archiveDir  where the .tgz is kept in verify mode
//	verify      download to disk and check md5 before extracting
//	servers     optional mirror override ([]string)
type SnapshotDownloader struct{}

func (d *SnapshotDownloader) ValidateJob(ctx context.Context, job *utils.TronJob) error {
	kind, _ := job.Metadata["kind"].(string)
	if _, err := KindFor(kind); err != nil {
		return err
	}
	dataDir, _ := job.Metadata["dataDir"].(string)
	if dataDir == "" {
		return utils.ConfigErrorf("snapshot job has no data directory")
	}
	if dbDir, _ := job.Metadata["databaseDir"].(string); dbDir != "" {
		empty, err := utils.DirIsEmpty(dbDir)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", dbDir, err)
		}
		if !empty {
			return utils.ErrJobSkipped
		}
	}
	return nil
}

func (d *SnapshotDownloader) BuildJob(ctx context.Context, job *utils.TronJob) error {
	log := utils.GetLogger("snapshot/build")
	client := utils.NewTronHTTPClient(job.HTTPClientConfig)
	servers, _ := job.Metadata["servers"].([]string)
	if len(servers) == 0 {
		servers = config.SnapshotServers
	}
	selector := NewSelector(client, servers)
	server, err := selector.SelectFastest(ctx)
	if err != nil {
		return err
	}
	kind := job.Metadata["kind"].(string)
	meta, err := selector.LatestSnapshot(ctx, server, kind)
	if err != nil {
		return err
	}
	info, err := tronhttp.Probe(ctx, client, meta.DownloadURL)
	if err != nil {
		return err
	}
	job.URL = info.URL
	job.ExpectedMD5 = meta.MD5
	job.Metadata["snapshot"] = meta
	job.Metadata["remote"] = info
	if verify, _ := job.Metadata["verify"].(bool); verify {
		archiveDir, _ := job.Metadata["archiveDir"].(string)
		if archiveDir == "" {
			archiveDir = job.Metadata["dataDir"].(string)
		}
		job.OutputPath = filepath.Join(archiveDir, fmt.Sprintf("tron-snapshot-%s.tgz", meta.Date))
	}
	log.Info().Str("server", server).Str("date", meta.Date).Int64("size", info.Size).Msg("snapshot selected")
	return nil
}

func (d *SnapshotDownloader) Download(ctx context.Context, job *utils.TronJob) error {
	info, ok := job.Metadata["remote"].(tronhttp.RemoteInfo)
	if !ok {
		return fmt.Errorf("job %s was not built", job.ID)
	}
	dataDir := job.Metadata["dataDir"].(string)
	verify, _ := job.Metadata["verify"].(bool)

	if !verify {
		client := utils.NewTronHTTPClient(job.HTTPClientConfig)
		progressCh, stop := tronhttp.TrackProgress(job, info.Size)
		err := archive.StreamURL(ctx, client, info.URL, dataDir, job.ExpectedMD5, progressCh)
		stop()
		return err
	}

	if job.ExpectedMD5 == "" {
		log := utils.GetLogger("snapshot/download")
		log.Warn().Str("url", info.URL).Msg("no md5 published for snapshot, integrity will not be verified")
	}
	job.HTTPClientConfig.HighThreadMode = true
	client := utils.NewTronHTTPClient(job.HTTPClientConfig)
	progressCh, stop := tronhttp.TrackProgress(job, info.Size)
	err := tronhttp.Transfer(ctx, client, info, job.OutputPath, job.ExpectedMD5, job.Connections, progressCh)
	stop()
	if err != nil {
		return err
	}
	if err := archive.ExtractFile(ctx, job.OutputPath, dataDir); err != nil {
		return err
	}
	if err := os.Remove(job.OutputPath); err != nil {
		return fmt.Errorf("failed to remove archive %s: %w", job.OutputPath, err)
	}
	return nil
}
