package main

import (
	"errors"
	"github.com/kataras/iris/v12"
	"github.com/xor-shift/rngserver/common"
	"github.com/xor-shift/rngserver/ingest"
	"github.com/xor-shift/rngserver/util/rng"
	"math/rand"
)

type sessionResponse struct {
	SessionID    uint64 `json:"sessionId"`
	Variant      string `json:"variant"`
	Seed         uint64 `json:"seed,string"`
	Steps        uint64 `json:"steps"`
	Draws        uint64 `json:"draws"`
	State        string `json:"state"`
	NextSequence uint64 `json:"nextSequence"`
	Dropped      uint64 `json:"dropped"`
}

func newSessionResponse(record ingest.SessionRecord) sessionResponse {
	g, _ := rng.New(record.Variant, record.Seed)
	_ = g.SetVector(record.State)

	return sessionResponse{
		SessionID:    record.ID,
		Variant:      record.Variant.String(),
		Seed:         record.Seed,
		Steps:        record.Steps,
		Draws:        record.Draws,
		State:        g.String(),
		NextSequence: record.Verified,
		Dropped:      record.Dropped,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrSessionNotFound):
		return iris.StatusNotFound
	case errors.Is(err, ingest.ErrBadRNGState),
		errors.Is(err, ingest.ErrOldSequence),
		errors.Is(err, ingest.ErrSequenceGap):
		return iris.StatusConflict
	case errors.Is(err, common.ErrBadDrawRequest),
		errors.Is(err, common.ErrUnknownDistribution),
		errors.Is(err, rng.ErrUnknownVariant):
		return iris.StatusBadRequest
	case errors.Is(err, ingest.ErrStopped):
		return iris.StatusServiceUnavailable
	default:
		return iris.StatusInternalServerError
	}
}

func fail(ctx iris.Context, err error) {
	ctx.StatusCode(statusFor(err))
	_, _ = ctx.JSON(iris.Map{"error": err.Error()})
}

func registerRoutes(app *iris.Application, in *ingest.Ingest) {
	app.Post("/session", func(ctx iris.Context) {
		body, err := ctx.GetBody()
		if err != nil {
			fail(ctx, err)
			return
		}

		req, err := common.ParseSessionRequest(body)
		if err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			_, _ = ctx.JSON(iris.Map{"error": err.Error()})
			return
		}

		variant, err := rng.ParseVariant(req.Variant)
		if err != nil {
			fail(ctx, err)
			return
		}

		seed := rand.Uint64()
		if req.Seed != nil {
			seed = *req.Seed
		}

		record, err := in.StartSession(ctx.Request().Context(), variant, seed)
		if err != nil {
			app.Logger().Errorf("starting a session failed: %s", err)
			fail(ctx, err)
			return
		}

		ctx.StatusCode(iris.StatusCreated)
		_, _ = ctx.JSON(newSessionResponse(record))
	})

	app.Get("/session/{id:uint64}", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")

		record, err := in.Session(ctx.Request().Context(), id)
		if err != nil {
			fail(ctx, err)
			return
		}

		_, _ = ctx.JSON(newSessionResponse(record))
	})

	app.Get("/session/{id:uint64}/state", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")

		record, err := in.Session(ctx.Request().Context(), id)
		if err != nil {
			fail(ctx, err)
			return
		}

		_, _ = ctx.WriteString(newSessionResponse(record).State)
	})

	app.Post("/session/{id:uint64}/draw", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")

		body, err := ctx.GetBody()
		if err != nil {
			fail(ctx, err)
			return
		}

		req, err := common.ParseDrawRequest(body)
		if err != nil {
			fail(ctx, err)
			return
		}

		batch, err := in.Draw(ctx.Request().Context(), id, req)
		if err != nil && batch.Len() == 0 {
			fail(ctx, err)
			return
		}

		if err != nil {
			app.Logger().Warnf("session %d: draw answered but not published: %s", id, err)
		}

		_, _ = ctx.JSON(batch)
	})

	app.Post("/session/{id:uint64}/verify", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")

		body, err := ctx.GetBody()
		if err != nil {
			fail(ctx, err)
			return
		}

		reports, err := common.ParseReports(body)
		if err != nil {
			ctx.StatusCode(iris.StatusBadRequest)
			_, _ = ctx.JSON(iris.Map{"error": err.Error()})
			return
		}

		result, err := in.Verify(ctx.Request().Context(), id, reports)
		if err != nil {
			ctx.StatusCode(statusFor(err))
			_, _ = ctx.JSON(iris.Map{"error": err.Error(), "result": result})
			return
		}

		_, _ = ctx.JSON(result)
	})
}
