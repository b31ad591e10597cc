package dash

import (
	"bytes"
	"context"
	"dashplayer/internal/logger"
	"dashplayer/internal/models"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultChunkSize is the largest piece of a body delivered in one result.
	DefaultChunkSize = 64 * 1024
	// DefaultRequestTimeout bounds one attempt, body included.
	DefaultRequestTimeout = 10 * time.Second

	maxRetries = 3
	retryDelay = 100 * time.Millisecond
)

// DownloadTask is one content download.
type DownloadTask struct {
	ConnID    uuid.UUID
	ContentID models.ContentID
	URL       string
	Method    string
}

// DownloadResult is one delivered piece of a task's body, or its failure.
type DownloadResult struct {
	Task DownloadTask
	// URL is where the body was served from after redirects.
	URL string
	// From and To are inclusive offsets of Data in the body.
	From  int64
	To    int64
	Data  []byte
	Total int64
	Last  bool
	// Started is when the first attempt was issued.
	Started time.Time
	Error   error
}

// Downloader fetches tasks on a pool of workers and streams their bodies back
// as DownloadResults on one channel, in order per task.
type Downloader struct {
	client    *Client
	logger    logger.Logger
	workers   int
	tasks     chan DownloadTask
	results   chan DownloadResult
	limiter   *rate.Limiter
	chunkSize int
	wg        sync.WaitGroup

	// RequestTimeout bounds a single attempt.
	RequestTimeout time.Duration
}

// NewDownloader creates a downloader with the given number of workers.
func NewDownloader(client *Client, log logger.Logger, workers int) *Downloader {
	if workers < 1 {
		workers = 1
	}
	return &Downloader{
		client:         client,
		logger:         log,
		workers:        workers,
		tasks:          make(chan DownloadTask, 64),
		results:        make(chan DownloadResult, 64),
		chunkSize:      DefaultChunkSize,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// SetRateLimit caps the aggregate delivery rate in bytes per second. 0 removes the cap.
func (d *Downloader) SetRateLimit(bytesPerSecond int) {
	if bytesPerSecond <= 0 {
		d.limiter = nil
		return
	}
	burst := bytesPerSecond
	if burst < d.chunkSize {
		burst = d.chunkSize
	}
	d.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// SetChunkSize changes the largest piece delivered per result.
func (d *Downloader) SetChunkSize(n int) {
	if n > 0 {
		d.chunkSize = n
	}
}

// Start launches the workers. They exit when ctx is cancelled; Wait blocks until they have.
func (d *Downloader) Start(ctx context.Context) {
	d.logger.Infof("Starting %d download workers...", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (d *Downloader) Wait() {
	d.wg.Wait()
}

// QueueDownload schedules a task. It blocks while the queue is full.
func (d *Downloader) QueueDownload(task DownloadTask) {
	d.tasks <- task
}

// Results returns the channel results are delivered on.
func (d *Downloader) Results() <-chan DownloadResult {
	return d.results
}

func (d *Downloader) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.tasks:
			d.download(ctx, task)
		}
	}
}

// download runs a task with retries. A retry skips the bytes already delivered.
func (d *Downloader) download(ctx context.Context, task DownloadTask) {
	started := time.Now()
	var delivered int64
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		d.logger.Debugf("Downloading %s from %s (Attempt %d/%d)", task.ContentID, task.URL, attempt, maxRetries)
		done, err := d.attempt(ctx, task, started, &delivered)
		if done {
			return
		}
		lastErr = fmt.Errorf("download attempt %d failed for %s: %w", attempt, task.ContentID, err)
		d.logger.Warnf("%v", lastErr)
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}

	d.emit(ctx, DownloadResult{
		Task:    task,
		Started: started,
		Error:   fmt.Errorf("failed to download %s after %d attempts: %w", task.ContentID, maxRetries, lastErr),
	})
}

// attempt performs one request. done is true once the task has been fully delivered
// or the context ended.
func (d *Downloader) attempt(ctx context.Context, task DownloadTask, started time.Time, delivered *int64) (bool, error) {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := task.Method
	if method == "" {
		method = http.MethodGet
	}
	resp, finalURL, err := d.client.Open(reqCtx, method, task.URL)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	body := io.Reader(resp.Body)
	if total < 0 {
		// size unknown: buffer the body so the first result can carry it
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, err
		}
		total = int64(len(data))
		body = bytes.NewReader(data)
	}

	if *delivered > 0 {
		if _, err := io.CopyN(io.Discard, body, *delivered); err != nil {
			return false, fmt.Errorf("skipping %d delivered bytes: %w", *delivered, err)
		}
	}

	if total == 0 {
		return d.emit(ctx, DownloadResult{Task: task, URL: finalURL, From: 0, To: -1, Total: 0, Last: true, Started: started}), nil
	}

	for *delivered < total {
		n := int64(d.chunkSize)
		if rest := total - *delivered; rest < n {
			n = rest
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(body, buf); err != nil {
			return false, err
		}
		if d.limiter != nil {
			if err := d.limiter.WaitN(ctx, len(buf)); err != nil {
				return true, err
			}
		}

		from := *delivered
		*delivered += n
		ok := d.emit(ctx, DownloadResult{
			Task:    task,
			URL:     finalURL,
			From:    from,
			To:      *delivered - 1,
			Data:    buf,
			Total:   total,
			Last:    *delivered == total,
			Started: started,
		})
		if !ok {
			return true, ctx.Err()
		}
	}
	return true, nil
}

// emit delivers a result unless ctx ends first.
func (d *Downloader) emit(ctx context.Context, r DownloadResult) bool {
	select {
	case d.results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
