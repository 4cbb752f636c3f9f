package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/util/rng"
	"io"
	"math"
	"strconv"
)

var errNonFinite = errors.New("non-finite value")

type genOptions struct {
	Seed    uint64
	Variant string
	Request common.DrawRequest
	Format  string
}

// generate draws opts.Request.Count values from a freshly seeded generator
// and writes them to w. The returned batch carries the state after the last
// draw.
func generate(w io.Writer, opts genOptions) (common.DrawBatch, error) {
	batch := common.DrawBatch{Distribution: opts.Request.Distribution}

	if err := opts.Request.Validate(); err != nil {
		return batch, err
	}

	variant, err := rng.ParseVariant(opts.Variant)
	if err != nil {
		return batch, err
	}

	gen, err := rng.New(variant, opts.Seed)
	if err != nil {
		return batch, err
	}

	r := rng.NewRand(gen)
	for i := 0; i < opts.Request.Count; i++ {
		opts.Request.Sample(r, &batch)
	}

	batch.Variant = variant.String()
	batch.State = gen.String()

	values := formatValues(&batch)

	switch opts.Format {
	case "json":
		for i, v := range batch.Floats {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return batch, fmt.Errorf("%w: value %d is %v, json has no representation for it", errNonFinite, i, v)
			}
		}

		raw := make([]json.RawMessage, len(values))
		for i, v := range values {
			raw[i] = json.RawMessage(v)
		}

		err = json.NewEncoder(w).Encode(raw)
	default:
		csvWriter := csv.NewWriter(w)
		for i, v := range values {
			if err = csvWriter.Write([]string{strconv.Itoa(i), v}); err != nil {
				return batch, err
			}
		}

		csvWriter.Flush()
		err = csvWriter.Error()
	}

	return batch, err
}

func formatValues(batch *common.DrawBatch) []string {
	ret := make([]string, 0, batch.Len())

	for _, v := range batch.Bits {
		ret = append(ret, strconv.FormatUint(v, 10))
	}

	for _, v := range batch.Ints {
		ret = append(ret, strconv.FormatInt(v, 10))
	}

	for _, v := range batch.Floats {
		ret = append(ret, strconv.FormatFloat(v, 'g', -1, 64))
	}

	return ret
}

// replay returns the generator after steps raw outputs.
func replay(variantName string, seed uint64, steps uint64) (rng.Generator, error) {
	variant, err := rng.ParseVariant(variantName)
	if err != nil {
		return nil, err
	}

	gen, err := rng.New(variant, seed)
	if err != nil {
		return nil, err
	}

	for i := uint64(0); i < steps; i++ {
		gen.Uint64()
	}

	return gen, nil
}

func printReplay(w io.Writer, gen rng.Generator, steps uint64) {
	_, _ = fmt.Fprintf(w, "variant: %s\nsteps: %d\nstate: %s\n", gen.Variant(), steps, gen)
}
