package main

import (
	"fmt"
	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
	"github.com/streadway/amqp"
	"github.com/xor-shift/rngserver/common"
	"sort"
)

func main() {
	config, err := common.LoadConfig()
	if err != nil {
		golog.Fatalf("loading dotenv failed: %s", err)
	}

	app := iris.New()
	app.Logger().SetLevel(config.LogLevel)

	t := newTracker()

	consumer, err := common.NewAMQPConsumer(
		config.AMQPURL,
		"draw_queue_fe",
		"consumer_fe",
		func(delivery amqp.Delivery) error {
			batch, err := common.ParseAMQPBatch(&delivery)
			if err != nil {
				return err
			}

			app.Logger().Debugf("session %d: %d %s draws from step %d", batch.SessionID, batch.Len(), batch.Distribution, batch.FirstStep)
			t.add(batch)

			return nil
		},
		func(err error) {
			app.Logger().Errorf("error decoding a batch: %s", err)
		})
	if err != nil {
		golog.Fatalf("failed to set up the amqp consumer: %s", err)
	}

	if err = consumer.Start(); err != nil {
		golog.Fatalf("failed to start consuming: %s", err)
	}

	app.Get("/test", func(ctx iris.Context) {
		_, _ = ctx.Text("OK")
	})

	app.Get("/data", func(ctx iris.Context) {
		_, _ = ctx.JSON(t.last())
	})

	app.Get("/stats", func(ctx iris.Context) {
		stats := t.snapshot()
		sort.Slice(stats, func(i, j int) bool {
			if stats[i].SessionID != stats[j].SessionID {
				return stats[i].SessionID < stats[j].SessionID
			}
			return stats[i].Distribution < stats[j].Distribution
		})

		_, _ = ctx.JSON(stats)
	})

	if err = app.Listen(fmt.Sprintf(":%s", config.ConsumerFEPort)); err != nil {
		app.Logger().Errorf("listening failed: %s", err)
	}
}
