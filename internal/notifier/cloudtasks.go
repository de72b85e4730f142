package notifier

import (
	"context"
	"fmt"
	"log"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// CloudTasksNotifier enqueues alert deliveries onto a Cloud Tasks queue for
// durable, retried dispatch. It wraps an
// HTTP callback endpoint that performs the actual SMS/email send — Cloud
// Tasks only owns retry/backoff/DLQ semantics for the enqueue itself.
// Selected when NOTIFIER_BACKEND=cloudtasks; falls back to the
// in-memory LocalNotifier on enqueue failure, the same graceful-degradation
// shape as the Bus and State Store.
type CloudTasksNotifier struct {
	client      *cloudtasks.Client
	queuePath   string
	callbackURL string
	fallback    *LocalNotifier
	logger      *log.Logger
}

// NewCloudTasksNotifier connects to the named queue and wraps fallback for
// enqueue failures (fallback may be nil, in which case failures surface as
// errors to the Decision Processor's TransientResourceError policy).
func NewCloudTasksNotifier(projectID, locationID, queueID, callbackURL string, fallback *LocalNotifier) (*CloudTasksNotifier, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudtasks.NewClient: %w", err)
	}

	n := &CloudTasksNotifier{
		client:      client,
		queuePath:   fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		callbackURL: callbackURL,
		fallback:    fallback,
		logger:      log.New(log.Writer(), "[NOTIFIER-CLOUDTASKS] ", log.LstdFlags),
	}
	n.logger.Printf("connected to Cloud Tasks queue: %s", n.queuePath)
	return n, nil
}

func (n *CloudTasksNotifier) SMS(ctx context.Context, text, to string) error {
	body := fmt.Sprintf(`{"kind":"sms","to":%q,"text":%q}`, to, text)
	if err := n.enqueue(ctx, body); err != nil {
		n.logger.Printf("enqueue failed, falling back to local notifier: %v", err)
		if n.fallback != nil {
			return n.fallback.SMS(ctx, text, to)
		}
		return err
	}
	return nil
}

func (n *CloudTasksNotifier) Email(ctx context.Context, subject, text, to string) error {
	body := fmt.Sprintf(`{"kind":"email","to":%q,"subject":%q,"text":%q}`, to, subject, text)
	if err := n.enqueue(ctx, body); err != nil {
		n.logger.Printf("enqueue failed, falling back to local notifier: %v", err)
		if n.fallback != nil {
			return n.fallback.Email(ctx, subject, text, to)
		}
		return err
	}
	return nil
}

func (n *CloudTasksNotifier) enqueue(ctx context.Context, body string) error {
	req := &taskspb.CreateTaskRequest{
		Parent: n.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					Url:        n.callbackURL,
					HttpMethod: taskspb.HttpMethod_POST,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       []byte(body),
				},
			},
		},
	}
	_, err := n.client.CreateTask(ctx, req)
	return err
}

var _ Notifier = (*CloudTasksNotifier)(nil)
