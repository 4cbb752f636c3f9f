package main

import (
	"context"
	"database/sql"
	"github.com/kataras/golog"
	"github.com/streadway/amqp"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/ingest"
	"os"
	"os/signal"
	"time"
)

func main() {
	config, err := common.LoadConfig()
	if err != nil {
		golog.Fatalf("loading dotenv failed: %s", err)
	}

	golog.SetLevel(config.LogLevel)

	var db *sql.DB
	if db, err = sql.Open("mysql", config.MySQL().FormatDSN()); err != nil {
		golog.Fatalf("opening the database failed: %s", err)
	}
	defer db.Close()

	store := ingest.NewMySQLStore(db)

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Migrate(migrateCtx)
	cancel()

	if err != nil {
		golog.Fatalf("migrating the database failed: %s", err)
	}

	consumer, err := common.NewAMQPConsumer(
		config.AMQPURL,
		"draw_queue_db",
		"consumer_db",
		func(delivery amqp.Delivery) error {
			batch, err := common.ParseAMQPBatch(&delivery)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err = store.InsertDrawBatch(ctx, batch); err != nil {
				return err
			}

			golog.Debugf("stored %d draws of session %d", batch.Len(), batch.SessionID)

			return nil
		},
		func(err error) {
			golog.Errorf("failed writing a batch to the db: %s", err)
		})
	if err != nil {
		golog.Fatalf("failed to set up the amqp consumer: %s", err)
	}

	if err = consumer.Start(); err != nil {
		golog.Fatalf("failed to start consuming: %s", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	if err = consumer.Stop(); err != nil {
		golog.Errorf("failed to cancel the consumer: %s", err)
	}

	consumer.Wait()

	if err = consumer.Close(); err != nil {
		golog.Errorf("failed to close the consumer: %s", err)
	}
}
