package main

import (
	"context"
	"database/sql"
	"github.com/alecthomas/kong"
	"github.com/kataras/golog"
	"github.com/kataras/iris/v12"
	"github.com/streadway/amqp"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/ingest"
	"time"
)

func main() {
	args := struct {
		Memory bool   `name:"memory" help:"keep sessions in memory and do not publish draws"`
		Env    string `name:"env" default:".env" help:"dotenv file with the service settings"`
	}{}

	_ = kong.Parse(&args)

	config, err := common.LoadConfig(args.Env)
	if err != nil {
		golog.Fatalf("loading dotenv failed: %s", err)
	}

	app := iris.New()
	app.Logger().SetLevel(config.LogLevel)

	var store ingest.Store
	var newPublisher func() (common.Publisher, error)

	if args.Memory {
		app.Logger().Warnf("running without a database, sessions are lost on exit")
		store = ingest.NewMemoryStore()
	} else {
		db, err := sql.Open("mysql", config.MySQL().FormatDSN())
		if err != nil {
			golog.Fatalf("opening the database failed: %s", err)
		}
		defer db.Close()

		mysqlStore := ingest.NewMySQLStore(db)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = mysqlStore.Migrate(ctx)
		cancel()

		if err != nil {
			golog.Fatalf("migrating the database failed: %s", err)
		}

		store = mysqlStore

		amqpConn, err := amqp.Dial(config.AMQPURL)
		if err != nil {
			golog.Fatalf("failed to dial amqp: %s", err)
		}
		defer amqpConn.Close()

		newPublisher = func() (common.Publisher, error) {
			return common.NewAMQPPublisher(amqpConn, config.AMQPCompress)
		}
	}

	in := ingest.NewIngester(store, newPublisher, app.Logger())
	in.Start(config.IngestWorkers)
	defer in.Stop()

	registerRoutes(app, in)

	if err = app.Listen(config.ProducerAddr); err != nil {
		app.Logger().Errorf("listening failed: %s", err)
	}
}
