// Package notifier implements the Decision Processor's alert transport.
// Two concrete paths exist: LocalNotifier queues deliveries for a bounded
// worker pool and returns once a job is queued; CloudTasksNotifier enqueues the same payload
// durably and falls back to LocalNotifier on enqueue failure.
package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Santhosh-zeta/RAKSHAK-AI/pkg/models"
)

// Notifier is the boundary to the external SMS/email transport.
type Notifier interface {
	SMS(ctx context.Context, text, to string) error
	Email(ctx context.Context, subject, text, to string) error
}

// SMSProvider is the vendor-specific SMS send operation a Notifier wraps.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, text string) error
}

// SMTPProvider is the vendor-specific email send operation a Notifier wraps.
type SMTPProvider interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// BuildMessages renders the SMS and email bodies for a fired decision,
// carrying the full RiskOutput so providers can format rich messages.
func BuildMessages(risk models.RiskOutput, decision models.DecisionOutput) (smsText, emailSubject, emailBody string) {
	smsText = fmt.Sprintf("[%s] Truck %s risk=%.2f (%s) rule=%s", risk.RiskLevel, risk.TruckID, risk.CompositeScore, risk.RiskLevel, decision.RuleName)
	emailSubject = fmt.Sprintf("Cargo-theft alert: truck %s — %s", risk.TruckID, risk.RiskLevel)
	emailBody = fmt.Sprintf(
		"Truck %s raised incident %s at %s.\n\nComposite risk score: %.2f (%s)\nConfidence: %.2f\nFusion method: %s\nTriggered rules: %v\nRule fired: %s\n",
		risk.TruckID, risk.IncidentID, risk.Timestamp.Format(time.RFC3339),
		risk.CompositeScore, risk.RiskLevel, risk.Confidence, risk.FusionMethod, risk.TriggeredRules, decision.RuleName,
	)
	return smsText, emailSubject, emailBody
}

// deliveryJob is one queued notification.
type deliveryJob struct {
	kind    string // "sms" or "email"
	to      string
	subject string
	text    string
	attempt int
}

// LocalNotifier sends SMS/email through injected provider stubs behind a
// bounded worker pool, retrying transient failures with backoff.
type LocalNotifier struct {
	sms    SMSProvider
	smtp   SMTPProvider
	queue  chan *deliveryJob
	logger *log.Logger
	wg     sync.WaitGroup
}

// NewLocalNotifier starts a worker pool of the given size (default 4).
func NewLocalNotifier(sms SMSProvider, smtp SMTPProvider, workers int) *LocalNotifier {
	if workers <= 0 {
		workers = 4
	}
	n := &LocalNotifier{
		sms:    sms,
		smtp:   smtp,
		queue:  make(chan *deliveryJob, 1000),
		logger: log.New(log.Writer(), "[NOTIFIER] ", log.LstdFlags),
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

func (n *LocalNotifier) worker() {
	defer n.wg.Done()
	for job := range n.queue {
		n.deliver(job)
	}
}

func (n *LocalNotifier) deliver(job *deliveryJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var err error
	switch job.kind {
	case "sms":
		err = n.sms.SendSMS(ctx, job.to, job.text)
	case "email":
		err = n.smtp.SendEmail(ctx, job.to, job.subject, job.text)
	}
	if err == nil {
		n.logger.Printf("delivered %s to %s", job.kind, job.to)
		return
	}

	n.logger.Printf("delivery failed: %s to %s: %v", job.kind, job.to, err)
	if job.attempt < 3 {
		time.Sleep(time.Duration(job.attempt*job.attempt) * time.Second)
		job.attempt++
		select {
		case n.queue <- job:
		default:
			n.logger.Printf("queue full, dropping retry for %s to %s", job.kind, job.to)
		}
	}
}

// SMS enqueues an SMS delivery. The call returns once the job is queued,
// not once it is delivered — matching the dispatcher's fire-and-forget
// Emit semantics.
func (n *LocalNotifier) SMS(_ context.Context, text, to string) error {
	if n.sms == nil {
		return fmt.Errorf("notifier: no SMS provider configured")
	}
	select {
	case n.queue <- &deliveryJob{kind: "sms", to: to, text: text, attempt: 1}:
		return nil
	default:
		return fmt.Errorf("notifier: delivery queue full")
	}
}

// Email enqueues an email delivery.
func (n *LocalNotifier) Email(_ context.Context, subject, text, to string) error {
	if n.smtp == nil {
		return fmt.Errorf("notifier: no SMTP provider configured")
	}
	select {
	case n.queue <- &deliveryJob{kind: "email", to: to, subject: subject, text: text, attempt: 1}:
		return nil
	default:
		return fmt.Errorf("notifier: delivery queue full")
	}
}

// Shutdown drains the queue and stops the worker pool.
func (n *LocalNotifier) Shutdown() {
	close(n.queue)
	n.wg.Wait()
}

var _ Notifier = (*LocalNotifier)(nil)
