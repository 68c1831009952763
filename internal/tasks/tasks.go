package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/email"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery      = "email:deliver"
	TypeAuctionExpireSweep = "auction:expire_sweep"
	TypeCommissionMature   = "commission:mature"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg               *config.Config
	emailSender       email.Sender
	auctionService    services.IAuctionService
	commissionService services.ICommissionService
	userService       services.IUserService
	configService     services.IConfigService
	taskClient        *asynq.Client
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	auctionService services.IAuctionService,
	commissionService services.ICommissionService,
	userService services.IUserService,
	configService services.IConfigService,
	taskClient *asynq.Client,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:               cfg,
		emailSender:       emailSender,
		auctionService:    auctionService,
		commissionService: commissionService,
		userService:       userService,
		configService:     configService,
		taskClient:        taskClient,
	}
}

// SetupServer configures and runs an Asynq server instance. The periodic
// sweeps re-enqueue themselves, so Seed must be called once at startup to
// prime them.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeAuctionExpireSweep, processor.HandleAuctionExpireSweepTask)
	mux.HandleFunc(TypeCommissionMature, processor.HandleCommissionMatureTask)
	log.Println("Registered background task handlers.")

	if err := srv.Run(mux); err != nil {
		log.Fatalf("Could not run Asynq server: %v", err)
	}
	return srv
}

// Seed enqueues the first run of each periodic sweep. TaskID-based
// uniqueness makes it safe to call from every starting worker.
func Seed(client *asynq.Client) {
	for _, taskType := range []string{TypeAuctionExpireSweep, TypeCommissionMature} {
		task := asynq.NewTask(taskType, nil)
		_, err := client.Enqueue(task, asynq.TaskID(taskType+":seed"), asynq.Retention(time.Minute))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf("Warning: failed to seed task %s: %v", taskType, err)
		}
	}
}

// --- Task Handlers ---

// EmailTaskPayload carries the data for a notification email. Kind picks
// the subject/body template.
type EmailTaskPayload struct {
	Kind        string `json:"kind"`
	DealID      string `json:"deal_id,omitempty"`
	BuyerID     string `json:"buyer_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

// HandleEmailDeliveryTask resolves the recipient and sends the
// notification for the payload's kind.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	userID, err := utils.ParseSixID(payload.BuyerID)
	if err != nil {
		return fmt.Errorf("invalid user ID in email payload: %w", asynq.SkipRetry)
	}
	user, err := p.userService.FindByID(ctx, userID)
	if err != nil {
		log.Printf("Error loading recipient %s for email task: %v", payload.BuyerID, err)
		return err
	}

	var subject, body string
	switch payload.Kind {
	case "service_fee_receipt":
		subject = fmt.Sprintf("%s: your concierge fee payment", p.cfg.AppName)
		body = fmt.Sprintf("Hi %s,\n\nWe received your concierge fee payment of $%.2f for deal %s. Your deal has moved to the next stage.\n",
			user.Name, float64(payload.AmountCents)/100, payload.DealID)
	case "offer_accepted":
		subject = fmt.Sprintf("%s: offer accepted", p.cfg.AppName)
		body = fmt.Sprintf("Hi %s,\n\nYour offer acceptance is confirmed. Deal %s is now open.\n", user.Name, payload.DealID)
	case "deal_complete":
		subject = fmt.Sprintf("%s: deal complete", p.cfg.AppName)
		body = fmt.Sprintf("Hi %s,\n\nDeal %s is complete. Enjoy the new vehicle!\n", user.Name, payload.DealID)
	case "commission_earned":
		subject = fmt.Sprintf("%s: you earned a referral commission", p.cfg.AppName)
		body = fmt.Sprintf("Hi %s,\n\nA referral commission of $%.2f has been credited to your account.\n",
			user.Name, float64(payload.AmountCents)/100)
	default:
		return fmt.Errorf("unknown email kind %q: %w", payload.Kind, asynq.SkipRetry)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", user.Email))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", p.cfg.SmtpFromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{user.Email}, subject, []byte(sb.String())); err != nil {
		log.Printf("Email sending failed (will retry): %v", err)
		return err
	}
	return nil
}

// HandleAuctionExpireSweepTask closes auctions past their window and
// re-enqueues itself for the next interval.
func (p *TaskProcessor) HandleAuctionExpireSweepTask(ctx context.Context, t *asynq.Task) error {
	closed, err := p.auctionService.CloseExpired(ctx)
	if err != nil {
		log.Printf("ERROR in auction expiry sweep: %v", err)
		// Fall through to re-enqueue; the sweep must keep running.
	}
	if closed > 0 {
		log.Printf("Auction expiry sweep closed %d auctions.", closed)
	}

	interval := p.configService.GetDuration(ctx, "EXPIRY_SWEEP_SECONDS", p.cfg.ExpirySweepEvery)
	if _, err := p.taskClient.EnqueueContext(ctx, t, asynq.ProcessIn(interval)); err != nil {
		log.Printf("ERROR failed to re-enqueue auction expiry sweep: %v", err)
		return err
	}
	return nil
}

// HandleCommissionMatureTask promotes held commissions past their window
// and re-enqueues itself for the next interval.
func (p *TaskProcessor) HandleCommissionMatureTask(ctx context.Context, t *asynq.Task) error {
	matured, err := p.commissionService.MaturePending(ctx)
	if err != nil {
		log.Printf("ERROR in commission maturity sweep: %v", err)
	}
	if matured > 0 {
		log.Printf("Commission maturity sweep promoted %d commissions.", matured)
	}

	interval := p.configService.GetDuration(ctx, "EXPIRY_SWEEP_SECONDS", p.cfg.ExpirySweepEvery)
	if _, err := p.taskClient.EnqueueContext(ctx, t, asynq.ProcessIn(interval)); err != nil {
		log.Printf("ERROR failed to re-enqueue commission maturity sweep: %v", err)
		return err
	}
	return nil
}
