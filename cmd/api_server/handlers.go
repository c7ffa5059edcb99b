package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperr "stockdata/pkg/error"
	"stockdata/pkg/provider/core"
	"stockdata/pkg/provider/crawler"
	"stockdata/pkg/timing"
)

// 未指定区间时的默认回溯长度
const (
	defaultKlineMonths    = 3
	defaultCalendarMonths = 1
	defaultRatingMonths   = 6
)

func (s *APIServer) search(c *gin.Context) {
	ds, err := s.source(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	results, err := ds.Search(ctx, c.Query("q"))
	s.respond(c, results, err)
}

func (s *APIServer) getQuote(c *gin.Context) {
	ds, err := s.source(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	quote, err := ds.GetQuote(ctx, c.Param("symbol"))
	s.respond(c, quote, err)
}

func (s *APIServer) getKline(c *gin.Context) {
	period, err := core.ParsePeriod(c.Query("period"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	r, err := rangeQuery(c, defaultKlineMonths)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ds, err := s.source(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	bars, err := ds.GetKline(ctx, c.Param("symbol"), period, r)
	s.respond(c, bars, err)
}

func (s *APIServer) getIndicators(c *gin.Context) {
	set, err := core.ParseIndicatorSet(listQuery(c, "indicators"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	r, err := rangeQuery(c, defaultKlineMonths)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ds, err := s.source(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	points, err := ds.GetIndicators(ctx, c.Param("symbol"), set, r)
	s.respond(c, points, err)
}

func (s *APIServer) getFinancials(c *gin.Context) {
	reportType, err := core.ParseReportType(c.Query("report_type"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	ds, err := s.source(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	rows, err := ds.GetFinancials(ctx, c.Param("symbol"), reportType)
	s.respond(c, rows, err)
}

func (s *APIServer) getTradingCalendar(c *gin.Context) {
	r, err := rangeQuery(c, defaultCalendarMonths)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ds, err := s.source(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	days, err := ds.GetTradingCalendar(ctx, r)
	s.respond(c, days, err)
}

// extended 扩展接口只由东财爬虫提供，不经过装饰器
func (s *APIServer) extended(c *gin.Context) (*crawler.Crawler, bool) {
	cr := s.manager.Crawler()
	if cr == nil {
		s.writeError(c, apperr.NewNotSupportedError(s.manager.ActiveName(), c.FullPath()))
		return nil, false
	}
	return cr, true
}

func (s *APIServer) getMarketIndices(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	quotes, err := cr.GetMarketIndices(ctx)
	s.respond(c, quotes, err)
}

func (s *APIServer) getPlateQuotes(c *gin.Context) {
	plateType, err := core.ParsePlateType(c.Query("type"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	size, err := intQuery(c, "size")
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	plates, err := cr.GetPlateQuotes(ctx, plateType, size)
	s.respond(c, plates, err)
}

func (s *APIServer) getBillboard(c *gin.Context) {
	size, err := intQuery(c, "size")
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	entries, err := cr.GetBillboard(ctx, c.Query("date"), size)
	s.respond(c, entries, err)
}

func (s *APIServer) getStockBillboard(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	entries, err := cr.GetStockBillboard(ctx, c.Param("symbol"), limit)
	s.respond(c, entries, err)
}

func (s *APIServer) getSmartScore(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	score, err := cr.GetSmartScore(ctx, c.Param("symbol"))
	s.respond(c, score, err)
}

func (s *APIServer) getSmartScoreRank(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	rank, err := cr.GetSmartScoreRank(ctx, c.Param("symbol"))
	s.respond(c, rank, err)
}

func (s *APIServer) getTopRatedStocks(c *gin.Context) {
	size, err := intQuery(c, "size")
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	stocks, err := cr.GetTopRatedStocks(ctx, size)
	s.respond(c, stocks, err)
}

func (s *APIServer) getLastTradingDay(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	day, err := cr.LastTradingDay(ctx)
	s.respond(c, day, err)
}

func (s *APIServer) getFundFlow(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	bars, err := cr.GetFundFlow(ctx, c.Param("symbol"), limit)
	s.respond(c, bars, err)
}

func (s *APIServer) getValuation(c *gin.Context) {
	indicator, err := core.ParseValuationIndicator(c.Query("indicator"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	window, err := core.ParseValuationWindow(c.Query("window"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	snapshot, err := cr.GetValuation(ctx, c.Param("symbol"), indicator, window)
	s.respond(c, snapshot, err)
}

func (s *APIServer) getInstitutionalRatings(c *gin.Context) {
	r, err := rangeQuery(c, defaultRatingMonths)
	if err != nil {
		s.writeError(c, err)
		return
	}
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	ratings, err := cr.GetInstitutionalRatings(ctx, c.Param("symbol"), r)
	s.respond(c, ratings, err)
}

func (s *APIServer) getMainBusiness(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	items, err := cr.GetMainBusiness(ctx, c.Param("symbol"), c.Query("report_date"))
	s.respond(c, items, err)
}

func (s *APIServer) getBusinessScope(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	scope, err := cr.GetBusinessScope(ctx, c.Param("symbol"))
	s.respond(c, scope, err)
}

func (s *APIServer) getReportDates(c *gin.Context) {
	cr, ok := s.extended(c)
	if !ok {
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	dates, err := cr.GetReportDates(ctx, c.Param("symbol"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, timing.FormatDate(d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *APIServer) respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// writeError 将错误分类映射为 HTTP 状态码
func (s *APIServer) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Request.URL.Path).Warn("data source call failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		RequestID: c.GetString("request_id"),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrProviderNotFound):
		return http.StatusNotFound, "source_not_found"
	case errors.Is(err, core.ErrProviderNotHealthy), errors.Is(err, core.ErrProviderClosed):
		return http.StatusServiceUnavailable, "source_unavailable"
	}

	be, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	code := strings.ToLower(string(be.Code))
	switch be.Code {
	case apperr.CodeInvalidSymbol:
		return http.StatusNotFound, code
	case apperr.CodeValidation:
		return http.StatusBadRequest, code
	case apperr.CodeNotSupported:
		return http.StatusNotImplemented, code
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout, code
	case apperr.CodeNetwork, apperr.CodeUpstream, apperr.CodeParse:
		return http.StatusBadGateway, code
	}
	return http.StatusInternalServerError, code
}

// rangeQuery 读取 start/end，缺省 end 为今天，start 为 end 往前 months 个月
func rangeQuery(c *gin.Context, months int) (core.DateRange, error) {
	end := timing.DayOf(time.Now())
	if v := c.Query("end"); v != "" {
		d, err := timing.ParseDate(v)
		if err != nil {
			return core.DateRange{}, apperr.NewValidationError(err.Error())
		}
		end = d
	}
	start := end.AddDate(0, -months, 0)
	if v := c.Query("start"); v != "" {
		d, err := timing.ParseDate(v)
		if err != nil {
			return core.DateRange{}, apperr.NewValidationError(err.Error())
		}
		start = d
	}
	r := core.DateRange{Start: start, End: end}
	return r, r.Validate()
}

// intQuery 缺省为 0，由数据源决定默认值
func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.NewValidationError(key + " must be a non-negative integer")
	}
	return n, nil
}

// listQuery 同时支持 ?k=a,b 与 ?k=a&k=b
func listQuery(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
