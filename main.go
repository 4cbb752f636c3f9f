package main

import (
	"github.com/alecthomas/kong"
	"github.com/kataras/golog"
	"github.com/xor-shift/rngserver/common"
	"os"
)

type genCmd struct {
	Seed    uint64  `name:"seed" short:"s" default:"0" help:"seed for SplitMix64 state expansion"`
	Variant string  `name:"variant" short:"v" default:"plusplus" help:"xoshiro256 variant (plus, plusplus)"`
	Dist    string  `name:"dist" short:"d" default:"u64" help:"distribution to draw from"`
	Count   int     `name:"n" short:"n" default:"10" help:"number of values"`
	Range   uint64  `name:"range" help:"exclusive bound for below"`
	Lower   float64 `name:"lower" help:"inclusive lower bound for int, float and double"`
	Upper   float64 `name:"upper" help:"upper bound for int, float and double"`
	Mu      float64 `name:"mu" default:"0" help:"gaussian mean"`
	Sigma   float64 `name:"sigma" default:"1" help:"gaussian standard deviation"`
	Format  string  `name:"format" short:"f" enum:"csv,json" default:"csv" help:"output format"`
	State   bool    `name:"state" help:"print the generator state after the draws to stderr"`
}

func (cmd *genCmd) Run() error {
	dist, err := common.ParseDistribution(cmd.Dist)
	if err != nil {
		return err
	}

	batch, err := generate(os.Stdout, genOptions{
		Seed:    cmd.Seed,
		Variant: cmd.Variant,
		Format:  cmd.Format,
		Request: common.DrawRequest{
			Distribution: dist,
			Count:        cmd.Count,
			Range:        cmd.Range,
			Lower:        cmd.Lower,
			Upper:        cmd.Upper,
			Mu:           cmd.Mu,
			Sigma:        cmd.Sigma,
		},
	})
	if err != nil {
		return err
	}

	if cmd.State {
		golog.Infof("state after %d %s draws: %s", batch.Len(), batch.Distribution, batch.State)
	}

	return nil
}

type replayCmd struct {
	Seed    uint64 `name:"seed" short:"s" default:"0" help:"seed for SplitMix64 state expansion"`
	Variant string `name:"variant" short:"v" default:"plusplus" help:"xoshiro256 variant (plus, plusplus)"`
	Steps   uint64 `arg:"" help:"number of raw outputs to skip"`
}

func (cmd *replayCmd) Run() error {
	gen, err := replay(cmd.Variant, cmd.Seed, cmd.Steps)
	if err != nil {
		return err
	}

	printReplay(os.Stdout, gen, cmd.Steps)
	return nil
}

func main() {
	cli := struct {
		LogLevel string `name:"log-level" default:"info" enum:"disable,fatal,error,warn,info,debug" help:"log level"`

		Gen    genCmd    `cmd:"" help:"draw values from a seeded generator"`
		Replay replayCmd `cmd:"" help:"print the generator state after a number of steps"`
	}{}

	ctx := kong.Parse(&cli,
		kong.Name("rngserver"),
		kong.Description("offline access to the xoshiro256 streams the producer serves"))

	golog.SetOutput(os.Stderr)
	golog.SetLevel(cli.LogLevel)

	ctx.FatalIfErrorf(ctx.Run())
}
