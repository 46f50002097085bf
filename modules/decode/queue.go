package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/common/model"
)

const (
	QueueKey     = "decode:queue"
	jobKeyPrefix = "decode:job:"
	JobTTL       = 24 * time.Hour

	popTimeout   = 5 * time.Second
	errorBackoff = 5 * time.Second
)

// Queue - decode jobs stored in redis, ids pushed on a list
type Queue struct {
	rdb redis.UniversalClient
}

// NewQueue - queue over an existing redis connection
func NewQueue(rdb redis.UniversalClient) *Queue {
	return &Queue{rdb: rdb}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// NewJob - pending job for a preprocessed image
func NewJob(session string, count int, image imageproc.ImagePayload) *model.DecodeJob {
	return &model.DecodeJob{
		JobID:     uuid.NewString(),
		SessionID: session,
		Count:     model.ClampCount(count),
		Image:     image,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Enqueue - store the job and push its id. Returns the queue length.
func (q *Queue) Enqueue(ctx context.Context, job *model.DecodeJob) (int64, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job: %w", err)
	}

	var length *redis.IntCmd
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.JobID), data, JobTTL)
		pipe.LPush(ctx, QueueKey, job.JobID)
		length = pipe.LLen(ctx, QueueKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}

	logger.WithFields(logrus.Fields{
		"job":      job.JobID,
		"session":  job.SessionID,
		"position": length.Val(),
	}).Info("📥 [Queue] Job enqueued")
	return length.Val(), nil
}

// Get - load a job; NotFoundError once it expired or never existed
func (q *Queue) Get(ctx context.Context, jobID string) (*model.DecodeJob, error) {
	data, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.NewNotFoundError("job not found: "+jobID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	var job model.DecodeJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", jobID, err)
	}
	return &job, nil
}

// Save - overwrite a job, keeping the TTL fresh
func (q *Queue) Save(ctx context.Context, job *model.DecodeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.JobID), data, JobTTL).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.JobID, err)
	}
	return nil
}

// Worker - pops job ids and runs them through the service
type Worker struct {
	queue       *Queue
	service     *Service
	concurrency int
	popTimeout  time.Duration
}

// NewWorker - at most concurrency jobs run at once
func NewWorker(queue *Queue, service *Service, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Worker{queue: queue, service: service, concurrency: concurrency, popTimeout: popTimeout}
}

// Run - watch the queue until ctx is cancelled, then wait for running jobs
func (w *Worker) Run(ctx context.Context) error {
	logger.WithField("queue", QueueKey).Info("👀 [Worker] Watching queue")

	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for {
		if ctx.Err() != nil {
			break
		}

		result, err := w.queue.rdb.BRPop(ctx, w.popTimeout, QueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.WithError(err).Error("❌ [Worker] Redis BRPOP error")
			if pause(ctx, errorBackoff) != nil {
				break
			}
			continue
		}

		// result[0] is the queue key, result[1] the job id
		jobID := result[1]
		logger.WithField("job", jobID).Info("🎯 [Worker] Received job")

		g.Go(func() error {
			w.process(ctx, jobID)
			return nil
		})
	}

	_ = g.Wait()
	logger.Info("🛑 [Worker] Stopped")
	return ctx.Err()
}

// Start - Run in the background. The returned channel closes once Run has
// returned, which is after every running job has saved its outcome.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("❌ [Worker] Stopped with error")
		}
	}()
	return done
}

// WaitStopped - block until a started worker is done or timeout passes
func WaitStopped(done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// process - run one job and record its outcome
func (w *Worker) process(ctx context.Context, jobID string) {
	job, err := w.queue.Get(ctx, jobID)
	if err != nil {
		logger.WithField("job", jobID).WithError(err).Error("❌ [Worker] Failed to fetch job")
		return
	}
	if job.Status != model.StatusPending {
		logger.WithFields(logrus.Fields{"job": jobID, "status": job.Status}).Warn("⚠️  [Worker] Skipping job that is not pending")
		return
	}

	job.Status = model.StatusProcessing
	if err := w.queue.Save(ctx, job); err != nil {
		logger.WithField("job", jobID).WithError(err).Warn("⚠️  [Worker] Failed to mark job processing")
	}

	res, err := w.service.Decode(ctx, DecodeRequest{
		SessionID: job.SessionID,
		JobID:     job.JobID,
		Count:     job.Count,
		Image:     job.Image,
	})

	now := time.Now().UTC()
	job.CompletedAt = &now
	switch {
	case err == nil:
		job.Status = model.StatusCompleted
		job.Result = &res.Result
	case errors.Is(err, context.Canceled):
		job.Status = model.StatusCancelled
		job.ErrorMessage = err.Error()
	default:
		job.Status = model.StatusFailed
		job.ErrorMessage = err.Error()
		job.ErrorCode = apperror.Code(err)
	}

	// the job outcome is stored even when ctx was cancelled mid-run
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := w.queue.Save(saveCtx, job); err != nil {
		logger.WithField("job", jobID).WithError(err).Error("❌ [Worker] Failed to save job result")
		return
	}

	logger.WithFields(logrus.Fields{
		"job":    jobID,
		"status": job.Status,
	}).Info("✅ [Worker] Job processing completed")
}
