package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/krushi/krushi-api/internal/logging"
    "github.com/krushi/krushi-api/internal/model"
)

// Publisher sends report events to RabbitMQ. Each publish opens its own
// connection so a broker outage never blocks request handling for longer
// than the dial timeout.
type Publisher struct {
    url         string
    dialTimeout time.Duration
    log         logging.Logger
}

func NewPublisher(url string, log logging.Logger) *Publisher {
    return &Publisher{url: url, dialTimeout: 3 * time.Second, log: log.With("component", "publisher")}
}

// ReportCreated publishes a ReportCreatedEvent for rep. Errors are logged
// and returned so the caller can ignore them.
func (p *Publisher) ReportCreated(ctx context.Context, rep model.DiseaseReport) error {
    return p.Publish(ctx, NewReportCreatedEvent(rep))
}

// Publish sends ev to the report.created queue as a persistent message.
func (p *Publisher) Publish(ctx context.Context, ev ReportCreatedEvent) error {
    conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
    if err != nil {
        p.log.Warn(ctx, "rabbitmq dial failed", "error", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn(ctx, "rabbitmq channel open failed", "error", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(
        ReportCreatedQueue, // name
        true,               // durable
        false,              // autoDelete
        false,              // exclusive
        false,              // noWait
        nil,                // args
    ); err != nil {
        p.log.Warn(ctx, "rabbitmq queue declare failed", "error", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    pubCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
    defer cancel()
    if err := ch.PublishWithContext(pubCtx,
        "",                 // default exchange
        ReportCreatedQueue, // routing key = queue name
        false,              // mandatory
        false,              // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            Timestamp:    time.Now().UTC(),
            Body:         body,
        },
    ); err != nil {
        p.log.Warn(ctx, "rabbitmq publish failed", "report_id", ev.ReportID, "error", err)
        return err
    }
    return nil
}
