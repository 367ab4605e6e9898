package cli

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/minio/minio-go/v7"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/pmichalski/clocksync/internal/config"
	"github.com/pmichalski/clocksync/internal/resources"
	"github.com/pmichalski/clocksync/pkg/database"
	"github.com/pmichalski/clocksync/pkg/logger"
	"github.com/pmichalski/clocksync/pkg/metrics"
)

// trigger is the optional message payload. An empty or unparseable body
// syncs every resource; a payload naming one resource syncs just that one.
type trigger struct {
	Resource string `json:"resource"`
}

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume sync triggers from the message queue",
		RunE: func(c *cobra.Command, args []string) error {
			return runServe(context.Background())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, false)

	db, err := database.ConnectWarehouse(cfg.WarehouseConnString)
	if err != nil {
		return err
	}
	defer db.Close()

	blob, err := database.ConnectBlob(cfg.BlobEndpoint, cfg.BlobAccessKey, cfg.BlobSecretKey, cfg.BlobSSL, cfg.Bucket)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(cfg.TriggerQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}
	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	metrics.StartMetricsServer(cfg.MetricsPort)
	metrics.StartHealthServer(cfg.HealthPort)
	logger.Infof("consuming triggers from %s", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return amqp.ErrClosed
			}
			handleTrigger(ctx, cfg, db, blob, d)
		}
	}
}

// handleTrigger runs one sync per delivery. A failed run is requeued once:
// re-running is safe because staging paths are deterministic and the merge is
// idempotent per key, but a second consecutive failure is acked and dropped
// so a poisoned trigger cannot loop forever.
func handleTrigger(ctx context.Context, cfg *config.Config, db *sql.DB, blob *minio.Client, d amqp.Delivery) {
	names := triggerResources(d.Body)
	if names == nil {
		logger.Warnf("trigger names unknown resource, dropping: %s", d.Body)
		d.Ack(false)
		return
	}

	if err := syncResources(ctx, cfg, db, blob, names); err != nil {
		logger.Errorf("triggered sync failed: %v", err)
		if d.Redelivered {
			d.Ack(false)
		} else {
			d.Nack(false, true)
		}
		return
	}
	d.Ack(false)
}

// triggerResources resolves a delivery body to the resource names to sync.
// Returns nil only when the payload names a resource that does not exist.
func triggerResources(body []byte) []string {
	var t trigger
	if err := json.Unmarshal(body, &t); err != nil || t.Resource == "" {
		names := make([]string, len(resources.All))
		for i, spec := range resources.All {
			names[i] = spec.Name
		}
		return names
	}
	if _, ok := resources.ByName(t.Resource); !ok {
		return nil
	}
	return []string{t.Resource}
}
