package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	exterrors "github.com/adverant/nexus/formextract-worker/internal/errors"
	"github.com/adverant/nexus/formextract-worker/internal/model"
	"github.com/adverant/nexus/formextract-worker/internal/processor"
)

// TaskTypeExtractForm is the asynq task type handled by the worker
const TaskTypeExtractForm = "extract-form"

// JobData is the extraction job payload shared by both queue backends
type JobData struct {
	JobID      string                 `json:"job_id"`
	FormConfig model.FormConfig       `json:"form_config"`
	Images     []model.Image          `json:"images"`
	OcrOutputs []model.OcrOutput      `json:"ocr_outputs"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// RedisJobData is the envelope stored in the <queue>:data hash
type RedisJobData struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Payload    JobData   `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
}

// DecodeJobData parses and checks a job payload
func DecodeJobData(payload []byte) (*JobData, error) {
	var job JobData
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, exterrors.NewInvalidRequestError("", fmt.Sprintf("failed to unmarshal job data: %v", err))
	}
	if job.JobID == "" {
		return nil, exterrors.NewInvalidRequestError("", "job_id is required")
	}
	return &job, nil
}

// Request converts the payload to a processor request
func (j *JobData) Request() *processor.ExtractRequest {
	return &processor.ExtractRequest{
		JobID:      j.JobID,
		FormConfig: j.FormConfig,
		Images:     j.Images,
		OcrOutputs: j.OcrOutputs,
		Metadata:   j.Metadata,
	}
}

// NewExtractTask builds the asynq task for job
func NewExtractTask(job *JobData, opts ...asynq.Option) (*asynq.Task, error) {
	if job == nil || job.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	return asynq.NewTask(TaskTypeExtractForm, payload, opts...), nil
}

// Enqueue submits job to the asynq queue; the job ID doubles as task ID
func Enqueue(ctx context.Context, client *asynq.Client, queueName string, job *JobData, maxRetries int) (*asynq.TaskInfo, error) {
	task, err := NewExtractTask(job)
	if err != nil {
		return nil, err
	}
	info, err := client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(job.JobID),
		asynq.MaxRetry(maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return info, nil
}

// PushRedisJob stores job in <queue>:data and pushes its ID onto the list
func PushRedisJob(ctx context.Context, client *redis.Client, queueName string, job *JobData, maxRetries int) error {
	if job == nil || job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	envelope := RedisJobData{
		ID:         job.JobID,
		Type:       TaskTypeExtractForm,
		Payload:    *job,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	keys := newQueueKeys(queueName)
	pipe := client.TxPipeline()
	pipe.HSet(ctx, keys.data, envelope.ID, data)
	pipe.LPush(ctx, keys.list, envelope.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.JobID, err)
	}
	return nil
}

// queueKeys are the Redis keys derived from a queue name
type queueKeys struct {
	list       string
	data       string
	processing string
	completed  string
	failed     string
	results    string
	errors     string
	events     string
}

func newQueueKeys(queueName string) queueKeys {
	return queueKeys{
		list:       queueName,
		data:       queueName + ":data",
		processing: queueName + ":processing",
		completed:  queueName + ":completed",
		failed:     queueName + ":failed",
		results:    queueName + ":results",
		errors:     queueName + ":errors",
		events:     queueName + ":events",
	}
}
