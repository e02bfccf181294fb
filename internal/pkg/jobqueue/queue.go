package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/curavoy/curavoy/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
)

// Processor handles jobs of one type.
type Processor func(job *Job) error

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	workers    int
	processors map[JobType]Processor
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a new job queue
func NewQueue(workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}

	return &Queue{
		client:     cache.GetClient(),
		workers:    workers,
		processors: make(map[JobType]Processor),
		stopCh:     make(chan struct{}),
	}
}

// RegisterProcessor attaches a handler for a job type. Must be called
// before Start.
func (q *Queue) RegisterProcessor(jobType JobType, p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processors[jobType] = p
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(jobType JobType, payload map[string]interface{}) (string, error) {
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}

	ctx := context.Background()
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	return job.ID, nil
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		// Move one job id from the queue to the processing list; the short
		// timeout keeps the stop channel responsive.
		jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, 2*time.Second).Result()
		if err != nil {
			if err != redis.Nil {
				log.Errorf("[JobQueue] Worker %d pop error: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}

		q.processJob(ctx, jobID)
	}
}

func (q *Queue) processJob(ctx context.Context, jobID string) {
	defer q.client.LRem(ctx, JobProcessingKey, 1, jobID)

	job, err := q.getJob(ctx, jobID)
	if err != nil {
		log.Errorf("[JobQueue] Job %s could not be loaded: %v", jobID, err)
		return
	}

	q.mu.Lock()
	processor, ok := q.processors[job.Type]
	q.mu.Unlock()
	if !ok {
		log.Errorf("[JobQueue] No processor registered for job type %s", job.Type)
		q.updateJob(ctx, job, JobStatusFailed, "no processor registered")
		return
	}

	now := time.Now()
	job.ProcessedAt = &now
	q.updateJob(ctx, job, JobStatusProcessing, "")

	if err := processor(job); err != nil {
		job.RetryCount++
		if job.RetryCount < job.MaxRetries {
			log.Warnf("[JobQueue] Job %s failed (attempt %d/%d), retrying: %v", job.ID, job.RetryCount, job.MaxRetries, err)
			q.updateJob(ctx, job, JobStatusRetrying, err.Error())
			q.client.LPush(ctx, JobQueueKey, job.ID)
			return
		}
		log.Errorf("[JobQueue] Job %s failed permanently: %v", job.ID, err)
		q.updateJob(ctx, job, JobStatusFailed, err.Error())
		return
	}

	done := time.Now()
	job.CompletedAt = &done
	q.updateJob(ctx, job, JobStatusCompleted, "")
}

func (q *Queue) getJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) updateJob(ctx context.Context, job *Job, status JobStatus, errMsg string) {
	job.Status = status
	job.ErrorMsg = errMsg
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to persist job %s: %v", job.ID, err)
	}
}
