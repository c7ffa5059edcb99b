package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"stockdata/pkg/logger"
	"stockdata/pkg/provider/core"
)

// measurement 名称
const (
	MeasurementKline = "kline"
	MeasurementQuote = "quote"
)

// InfluxConfig InfluxDB 连接参数
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink 写入 InfluxDB 2.x
//
// K 线以 symbol、period 为 tag，时间取交易日（上海时区零点）或分钟线时刻。
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	source string
	log    *logrus.Entry
	closed atomic.Bool
}

// NewInfluxSink 创建写入端，source 作为 tag 记录数据来源
func NewInfluxSink(cfg InfluxConfig, source string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetUseGZip(true))
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		source: source,
		log:    logger.WithComponent("InfluxSink"),
	}
}

// Ping 检查 InfluxDB 健康状态
func (s *InfluxSink) Ping(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return NewStorageError("influxdb health check failed", err)
	}
	if health.Status != "pass" {
		return NewStorageError(fmt.Sprintf("influxdb health status %s", health.Status), nil)
	}
	return nil
}

// WriteBars 写入 K 线
func (s *InfluxSink) WriteBars(ctx context.Context, bars []core.KlineBar) error {
	points := make([]*write.Point, 0, len(bars))
	for _, bar := range bars {
		points = append(points, s.barPoint(bar))
	}
	return s.writePoints(ctx, MeasurementKline, points)
}

// WriteQuotes 写入实时行情
func (s *InfluxSink) WriteQuotes(ctx context.Context, quotes []core.Quote) error {
	points := make([]*write.Point, 0, len(quotes))
	for _, q := range quotes {
		points = append(points, s.quotePoint(q))
	}
	return s.writePoints(ctx, MeasurementQuote, points)
}

func (s *InfluxSink) writePoints(ctx context.Context, measurement string, points []*write.Point) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		return NewStorageError("write "+measurement+" points", err)
	}
	s.log.WithFields(logrus.Fields{
		"measurement": measurement,
		"points":      len(points),
	}).Debug("points written")
	return nil
}

func (s *InfluxSink) barPoint(bar core.KlineBar) *write.Point {
	p := influxdb2.NewPointWithMeasurement(MeasurementKline).
		AddTag("symbol", bar.Symbol).
		AddTag("period", string(bar.Period)).
		AddTag("source", s.source).
		AddField("open", bar.Open).
		AddField("close", bar.Close).
		AddField("high", bar.High).
		AddField("low", bar.Low).
		AddField("volume", bar.Volume).
		SetTime(bar.Date)
	addOptional(p, "amount", bar.Amount)
	addOptional(p, "amplitude", bar.Amplitude)
	addOptional(p, "change_percent", bar.ChangePercent)
	addOptional(p, "change_amount", bar.ChangeAmount)
	addOptional(p, "turnover_rate", bar.TurnoverRate)
	return p
}

func (s *InfluxSink) quotePoint(q core.Quote) *write.Point {
	source := q.Source
	if source == "" {
		source = s.source
	}
	p := influxdb2.NewPointWithMeasurement(MeasurementQuote).
		AddTag("symbol", q.Symbol).
		AddTag("source", source).
		AddField("price", q.Price).
		SetTime(q.Timestamp)
	addOptional(p, "change", q.Change)
	addOptional(p, "change_percent", q.ChangePercent)
	addOptional(p, "open", q.Open)
	addOptional(p, "high", q.High)
	addOptional(p, "low", q.Low)
	addOptional(p, "prev_close", q.PrevClose)
	addOptional(p, "volume", q.Volume)
	addOptional(p, "amount", q.Amount)
	addOptional(p, "turnover_rate", q.TurnoverRate)
	addOptional(p, "pe_ttm", q.PE)
	addOptional(p, "pb", q.PB)
	addOptional(p, "market_cap", q.MarketCap)
	return p
}

// addOptional 缺失的字段不写入
func addOptional(p *write.Point, key string, v *float64) {
	if v != nil {
		p.AddField(key, *v)
	}
}

// Close 关闭客户端
func (s *InfluxSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.client.Close()
	return nil
}

var _ Sink = (*InfluxSink)(nil)
