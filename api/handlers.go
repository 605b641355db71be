package api

import (
	"net/http"

	"github.com/kataras/iris/v12"
	log "github.com/sirupsen/logrus"

	"github.com/netwatcherio/netwatcher-diag/probes"
)

func (s *Server) health(ctx iris.Context) {
	_ = ctx.JSON(HealthResponse{Status: "ok", Version: s.Version})
}

func (s *Server) interfaces(ctx iris.Context) {
	upOnly := ctx.URLParamBoolDefault("up", false)

	ifaces, err := s.dispatcher.Interfaces(ctx.Request().Context(), upOnly)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = ctx.JSON(ifaces)
}

func (s *Server) interfaceSummary(ctx iris.Context) {
	ifaces, err := s.dispatcher.Interfaces(ctx.Request().Context(), false)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = ctx.JSON(summarize(ifaces))
}

func (s *Server) speedTest(ctx iris.Context) {
	name := ctx.Params().Get("interfaceName")

	res, err := s.dispatcher.SpeedTest(ctx.Request().Context(), name)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = ctx.JSON(res)
}

func (s *Server) analyzeURL(ctx iris.Context) {
	raw := ctx.URLParam("url")
	if raw == "" {
		_ = ctx.StopWithJSON(http.StatusBadRequest, ErrorResponse{
			Error:   kindBadRequest,
			Message: "URL parameter is required",
		})
		return
	}
	_ = ctx.JSON(s.dispatcher.AnalyzeURL(ctx.Request().Context(), raw))
}

func (s *Server) networkInfo(ctx iris.Context) {
	withPublic := ctx.URLParamBoolDefault("public", false)

	res, err := s.dispatcher.NetInfo(ctx.Request().Context(), withPublic)
	if err != nil {
		writeError(ctx, err)
		return
	}
	_ = ctx.JSON(res)
}

func writeError(ctx iris.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s: %v", ctx.Method(), ctx.Path(), err)
	}
	_ = ctx.StopWithJSON(status, ErrorResponse{
		Error:   probes.ErrorKind(err),
		Message: err.Error(),
	})
}
