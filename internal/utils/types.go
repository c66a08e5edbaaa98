package utils

import "context"

// Downloader is a provisioning step run by the scheduler: validate the
// request, resolve what to fetch, then fetch it.
type Downloader interface {
	ValidateJob(ctx context.Context, job *TronJob) error
	BuildJob(ctx context.Context, job *TronJob) error
	Download(ctx context.Context, job *TronJob) error
}

type TronJob struct {
	ID               string
	JobType          string
	Name             string
	OutputPath       string
	URL              string
	Connections      int
	ExpectedMD5      string
	ProgressFunc     func(downloaded, total int64)
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
}
