package main

import (
	"context"
	"database/sql"
	"github.com/alecthomas/kong"
	"github.com/kataras/golog"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/ingest"
	"os"
	"time"
)

func main() {
	var err error

	args := struct {
		Session            uint64 `name:"session" short:"s" help:"session number to export" required:""`
		Out                string `name:"out" short:"o" default:"session_{{.SessionNo}}.{{.Format}}" help:"File to output to (templated)"`
		Format             string `name:"format" short:"f" enum:"csv,json" default:"csv" help:"Data format"`
		ExportColumnTitles bool   `name:"export_column_titles" negatable:"" default:"true" help:"(applicable only to CSV outputs) whether to include column titles for CSV exports"`
		Env                string `name:"env" default:".env" help:"dotenv file with the database settings"`
	}{}

	_ = kong.Parse(&args)

	config, err := common.LoadConfig(args.Env)
	if err != nil {
		golog.Fatalf("loading dotenv failed: %s", err)
	}

	golog.SetLevel(config.LogLevel)

	var db *sql.DB
	if db, err = sql.Open("mysql", config.MySQL().FormatDSN()); err != nil {
		golog.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	rows, err := ingest.NewMySQLStore(db).LoadDraws(ctx, args.Session)
	cancel()
	db.Close()

	if err != nil {
		golog.Fatalf("failed to fetch rows for session %d: %s", args.Session, err)
	}

	golog.Infof("fetched %d draws of session %d", len(rows), args.Session)

	outFileName, err := outputFileName(args.Out, args.Session, args.Format)
	if err != nil {
		golog.Fatal(err)
	}

	var outFile *os.File
	if outFile, err = os.Create(outFileName); err != nil {
		golog.Fatalf("error while creating the output file \"%s\": %s", outFileName, err)
	}
	defer outFile.Close()

	if args.Format == "json" {
		err = writeJSON(outFile, rows)
	} else {
		err = writeCSV(outFile, rows, args.ExportColumnTitles)
	}

	if err != nil {
		golog.Fatalf("error while writing \"%s\": %s", outFileName, err)
	}
}
