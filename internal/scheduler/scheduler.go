package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ghrelease "github.com/chulingera2025/tron-launcher/internal/downloaders/github-release"
	tronhttp "github.com/chulingera2025/tron-launcher/internal/downloaders/http"
	"github.com/chulingera2025/tron-launcher/internal/downloaders/snapshot"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/google/uuid"
)

// downloaderRegistry maps job types to their downloader implementations
var downloaderRegistry = map[string]utils.Downloader{
	"http":           &tronhttp.HTTPDownloader{},
	"github-release": &ghrelease.GitReleaseDownloader{},
	"snapshot":       &snapshot.SnapshotDownloader{},
}

// Run executes the provisioning jobs on numWorkers workers and returns the
// joined failures. A skipped job is not a failure.
func Run(ctx context.Context, jobs []utils.TronJob, numWorkers int) error {
	return run(ctx, output.NewManager(), downloaderRegistry, jobs, numWorkers)
}

func run(ctx context.Context, outputMgr *output.Manager, registry map[string]utils.Downloader, jobs []utils.TronJob, numWorkers int) error {
	log := utils.GetLogger("scheduler")
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	jobCh := make(chan *utils.TronJob, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if job.Metadata == nil {
			job.Metadata = map[string]any{}
		}
		jobCh <- job
	}
	close(jobCh)

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for range max(1, numWorkers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if err := processJob(ctx, job, registry, outputMgr); err != nil {
					log.Error().Err(err).Str("job", job.Name).Str("id", job.ID).Msg("job failed")
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func processJob(ctx context.Context, job *utils.TronJob, registry map[string]utils.Downloader, outputMgr *output.Manager) error {
	taskID := outputMgr.RegisterTask(job.Name)
	fail := func(err error) error {
		outputMgr.ReportError(taskID, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	downloader, ok := registry[job.JobType]
	if !ok {
		return fail(fmt.Errorf("unknown job type: %s", job.JobType))
	}

	outputMgr.SetMessage(taskID, fmt.Sprintf("Checking %s", job.Name))
	if err := downloader.ValidateJob(ctx, job); err != nil {
		if errors.Is(err, utils.ErrJobSkipped) {
			outputMgr.Complete(taskID, output.StatusSkipped, fmt.Sprintf("%s already present, skipped", job.Name))
			return nil
		}
		return fail(fmt.Errorf("validation failed: %w", err))
	}

	outputMgr.SetMessage(taskID, fmt.Sprintf("Resolving %s", job.Name))
	if err := downloader.BuildJob(ctx, job); err != nil {
		return fail(err)
	}

	outputMgr.SetMessage(taskID, fmt.Sprintf("Downloading %s", job.Name))
	job.ProgressFunc = func(downloaded, total int64) {
		outputMgr.AddProgressBarToStream(taskID, downloaded, total)
	}
	if err := downloader.Download(ctx, job); err != nil {
		return fail(err)
	}

	message := fmt.Sprintf("Downloaded %s", job.Name)
	if tag, _ := job.Metadata["tagName"].(string); tag != "" {
		message = fmt.Sprintf("Downloaded %s (%s)", job.Name, tag)
	}
	outputMgr.Complete(taskID, output.StatusSuccess, message)
	return nil
}
