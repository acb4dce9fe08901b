package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sethvargo/go-retry"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/model"
)

// Assigner matches a report to an agronomist in the farmer's district.
type Assigner interface {
    AssignReport(ctx context.Context, reportID, farmerID uint64) (*model.Agronomist, error)
}

// ReportHandler assigns reports and appends one line per report to a
// notification log.
type ReportHandler struct {
    assigner Assigner
    logPath  string
    log      logging.Logger
    mu       sync.Mutex
}

func NewReportHandler(assigner Assigner, logPath string, log logging.Logger) *ReportHandler {
    if logPath == "" {
        logPath = filepath.Join("logs", "report-notifications.log")
    }
    return &ReportHandler{assigner: assigner, logPath: logPath, log: log.With("component", "report-consumer")}
}

// Handle processes one message body.
func (h *ReportHandler) Handle(ctx context.Context, body []byte) error {
    var ev ReportCreatedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.ReportID == 0 || ev.FarmerID == 0 {
        return errors.New("event without report or farmer id")
    }

    assigned := "none"
    a, err := h.assigner.AssignReport(ctx, ev.ReportID, ev.FarmerID)
    if err != nil {
        return fmt.Errorf("assign report %d: %w", ev.ReportID, err)
    }
    if a != nil {
        assigned = fmt.Sprintf("%d (%s)", a.ID, a.FullName)
        h.log.Info(ctx, "report assigned", "report_id", ev.ReportID, "agronomist_id", a.ID)
    }

    line := fmt.Sprintf("[%s] Report created | report_id=%d | farmer_id=%d | kind=%s | crop=%q | label=%q | images=%d | agronomist=%s\n",
        ev.CreatedAt, ev.ReportID, ev.FarmerID, ev.Kind, ev.CropName, ev.Label, ev.Images, assigned)
    return h.appendLine(line)
}

func (h *ReportHandler) appendLine(line string) error {
    h.mu.Lock()
    defer h.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(h.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(h.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// Reconnect backoff bounds.
var (
    reconnectBase = time.Second
    reconnectCap  = 30 * time.Second
)

var dialAMQP = amqp.Dial

// reconnectBackoff doubles from reconnectBase and never exceeds reconnectCap.
func reconnectBackoff() retry.Backoff {
    return retry.WithCappedDuration(reconnectCap, retry.NewExponential(reconnectBase))
}

// StartReportConsumer connects to RabbitMQ, declares the report.created
// queue and hands every delivery to h. It reconnects with exponential
// backoff (capped at 30s) and returns only when ctx is cancelled.
func StartReportConsumer(ctx context.Context, url string, h *ReportHandler) error {
    for {
        conn, err := dialWithBackoff(ctx, url, h.log)
        if err != nil {
            return err
        }

        err = consumeLoop(ctx, conn, h)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        h.log.Warn(ctx, "report consumer loop ended, reconnecting", "error", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

// dialWithBackoff retries the dial until it succeeds or ctx is done. Each
// call starts from a fresh backoff.
func dialWithBackoff(ctx context.Context, url string, log logging.Logger) (*amqp.Connection, error) {
    var conn *amqp.Connection
    attempt := 0
    err := retry.Do(ctx, reconnectBackoff(), func(ctx context.Context) error {
        attempt++
        c, err := dialAMQP(url)
        if err != nil {
            log.Warn(ctx, "report consumer dial failed", "attempt", attempt, "error", err)
            return retry.RetryableError(err)
        }
        conn = c
        return nil
    })
    if err != nil {
        return nil, err
    }
    return conn, nil
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, h *ReportHandler) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        h.log.Warn(ctx, "report consumer QoS failed", "error", err)
    }
    if _, err := ch.QueueDeclare(ReportCreatedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ReportCreatedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
            err := h.Handle(hctx, d.Body)
            cancel()
            if err != nil {
                h.log.Error(ctx, "report message failed", "error", err)
                _ = d.Nack(false, false) // no requeue, avoids tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
