package common

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/mitchellh/mapstructure"
	"github.com/xor-shift/rngserver/util/rng"
	"math"
	"reflect"
)

const MaxDrawCount = 1 << 16

var (
	ErrUnknownDistribution = errors.New("unknown distribution")
	ErrBadDrawRequest      = errors.New("bad draw request")
)

type Distribution string

const (
	DistU64           Distribution = "u64"
	DistBelow         Distribution = "below"
	DistInt           Distribution = "int"
	DistFloat01       Distribution = "float01"
	DistDouble01      Distribution = "double01"
	DistFloat         Distribution = "float"
	DistDouble        Distribution = "double"
	DistFloatGaussian Distribution = "float_gaussian"
	DistGaussian      Distribution = "gaussian"
)

var Distributions = []Distribution{
	DistU64, DistBelow, DistInt,
	DistFloat01, DistDouble01, DistFloat, DistDouble,
	DistFloatGaussian, DistGaussian,
}

func ParseDistribution(str string) (Distribution, error) {
	for _, d := range Distributions {
		if string(d) == str {
			return d, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownDistribution, str)
}

// Kind tells which of the DrawBatch value slices a distribution fills.
type Kind int

const (
	KindBits Kind = iota
	KindInt
	KindFloat
)

func (d Distribution) Kind() Kind {
	switch d {
	case DistU64, DistBelow:
		return KindBits
	case DistInt:
		return KindInt
	default:
		return KindFloat
	}
}

type DrawRequest struct {
	Distribution Distribution `json:"dist" mapstructure:"dist"`
	Count        int          `json:"n" mapstructure:"n"`

	Range uint64  `json:"range,omitempty" mapstructure:"range"`
	Lower float64 `json:"lower,omitempty" mapstructure:"lower"`
	Upper float64 `json:"upper,omitempty" mapstructure:"upper"`
	Mu    float64 `json:"mu,omitempty" mapstructure:"mu"`
	Sigma float64 `json:"sigma,omitempty" mapstructure:"sigma"`
}

func (req DrawRequest) Validate() error {
	if _, err := ParseDistribution(string(req.Distribution)); err != nil {
		return err
	}

	if req.Count < 1 || req.Count > MaxDrawCount {
		return fmt.Errorf("%w: n must be in [1, %d], got %d", ErrBadDrawRequest, MaxDrawCount, req.Count)
	}

	for name, v := range map[string]float64{"lower": req.Lower, "upper": req.Upper, "mu": req.Mu, "sigma": req.Sigma} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrBadDrawRequest, name, v)
		}
	}

	switch req.Distribution {
	case DistBelow:
		if req.Range == 0 {
			return fmt.Errorf("%w: %s", ErrBadDrawRequest, rng.ErrZeroRange)
		}
	case DistInt:
		if req.Lower != math.Trunc(req.Lower) || req.Upper != math.Trunc(req.Upper) ||
			req.Lower < math.MinInt32 || req.Upper > math.MaxInt32 {
			return fmt.Errorf("%w: int bounds must be int32 values", ErrBadDrawRequest)
		}
		fallthrough
	case DistFloat, DistDouble:
		if req.Upper < req.Lower {
			return fmt.Errorf("%w: %s", ErrBadDrawRequest, rng.ErrInvertedRange)
		}

		if math.IsInf(req.Upper-req.Lower, 0) {
			return fmt.Errorf("%w: range width overflows", ErrBadDrawRequest)
		}
	}

	switch req.Distribution {
	case DistFloat:
		if math.IsInf(float64(float32(req.Upper)-float32(req.Lower)), 0) {
			return fmt.Errorf("%w: range width overflows single precision", ErrBadDrawRequest)
		}
	case DistFloatGaussian:
		if math.IsInf(float64(float32(req.Mu)), 0) || math.IsInf(float64(float32(req.Sigma)), 0) {
			return fmt.Errorf("%w: mu and sigma must fit single precision", ErrBadDrawRequest)
		}
	}

	return nil
}

// ParseDrawRequest decodes a JSON draw request. The count defaults to 1 and
// sigma to 1 when they are left out.
func ParseDrawRequest(body []byte) (req DrawRequest, err error) {
	raw := map[string]interface{}{}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	if err = decoder.Decode(&raw); err != nil {
		err = fmt.Errorf("%w: %s", ErrBadDrawRequest, err)
		return
	}

	req.Count = 1
	req.Sigma = 1

	if err = decodeWeakly(raw, &req); err != nil {
		err = fmt.Errorf("%w: %s", ErrBadDrawRequest, err)
		return
	}

	err = req.Validate()
	return
}

// Sample draws one value for req from r into batch.
func (req DrawRequest) Sample(r *rng.Rand, batch *DrawBatch) {
	switch req.Distribution {
	case DistU64:
		batch.Bits = append(batch.Bits, r.Uint64())
	case DistBelow:
		batch.Bits = append(batch.Bits, r.Below(req.Range))
	case DistInt:
		batch.Ints = append(batch.Ints, int64(r.Int(int32(req.Lower), int32(req.Upper))))
	case DistFloat01:
		batch.Floats = append(batch.Floats, float64(r.Float01()))
	case DistDouble01:
		batch.Floats = append(batch.Floats, r.Double01())
	case DistFloat:
		batch.Floats = append(batch.Floats, float64(r.Float(float32(req.Lower), float32(req.Upper))))
	case DistDouble:
		batch.Floats = append(batch.Floats, r.Double(req.Lower, req.Upper))
	case DistFloatGaussian:
		batch.Floats = append(batch.Floats, float64(r.FloatGaussian(float32(req.Mu), float32(req.Sigma))))
	case DistGaussian:
		batch.Floats = append(batch.Floats, r.DoubleGaussian(req.Mu, req.Sigma))
	}
}

// DrawBatch is one answered draw request. FirstIndex is the number of values
// the session had handed out before the batch, FirstStep the number of raw
// generator outputs it had consumed and Steps the number the batch consumed.
type DrawBatch struct {
	SessionID    uint64       `json:"sessionId"`
	Variant      string       `json:"variant"`
	Distribution Distribution `json:"dist"`
	FirstIndex   uint64       `json:"firstIndex"`
	FirstStep    uint64       `json:"firstStep"`
	Steps        uint64       `json:"steps"`

	Bits   []uint64  `json:"bits,omitempty"`
	Ints   []int64   `json:"ints,omitempty"`
	Floats []float64 `json:"floats,omitempty"`

	State string `json:"state"`
}

func (batch *DrawBatch) Len() int {
	return len(batch.Bits) + len(batch.Ints) + len(batch.Floats)
}

// Values returns every value of the batch as a float64, in order.
func (batch *DrawBatch) Values() []float64 {
	ret := make([]float64, 0, batch.Len())

	for _, v := range batch.Bits {
		ret = append(ret, float64(v))
	}

	for _, v := range batch.Ints {
		ret = append(ret, float64(v))
	}

	return append(ret, batch.Floats...)
}

// Report is a raw generator output claimed by a client for a sequence number.
// Sequence numbers start at zero for the first output after seeding.
type Report struct {
	SequenceID uint64 `json:"seq" mapstructure:"seq"`
	RNGState   uint64 `json:"rng" mapstructure:"rng"`
}

func ParseReports(body []byte) (reports []Report, err error) {
	raw := []interface{}{}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	if err = decoder.Decode(&raw); err != nil {
		return
	}

	reports = make([]Report, len(raw))

	for k, v := range raw {
		if err = decodeWeakly(v, &reports[k]); err != nil {
			err = fmt.Errorf("report at index %d was malformed: %s", k, err)
			return
		}
	}

	return
}

// numberToString hands json.Number over as text so that the weak string
// conversions parse it with the target's full width. Going through Int64
// would reject uint64 values above MaxInt64.
func numberToString(_ reflect.Type, _ reflect.Type, data interface{}) (interface{}, error) {
	if n, ok := data.(json.Number); ok {
		return n.String(), nil
	}

	return data, nil
}

func decodeWeakly(input, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       numberToString,
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

func init() {
	gob.Register(DrawBatch{})
}
