package data

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"stratbench/internal/market"

	"github.com/adshao/go-binance/v2"
)

// BinanceProvider 基于 Binance 现货 REST klines 接口。
type BinanceProvider struct {
	client *binance.Client
	limit  int
}

func NewBinanceProvider() *BinanceProvider {
	// 历史 K 线是公开接口，不需要密钥。
	return &BinanceProvider{
		client: binance.NewClient("", ""),
		limit:  1000,
	}
}

func (p *BinanceProvider) Name() string { return "binance" }

func (p *BinanceProvider) Fetch(ctx context.Context, symbol string, res market.Resolution, start, end int64) ([]market.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	sym := strings.ToUpper(symbol)
	step := res.StepMillis()
	out := make([]market.Bar, 0, res.ExpectedBars(start, end))
	cursor := start
	for cursor <= end {
		klines, err := p.client.NewKlinesService().
			Symbol(sym).
			Interval(res.SourceInterval).
			StartTime(cursor).
			EndTime(end).
			Limit(p.limit).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.OpenTime < cursor || k.OpenTime > end {
				continue
			}
			out = append(out, market.Bar{
				Symbol:    sym,
				Timestamp: k.OpenTime,
				Open:      parseFloat(k.Open),
				High:      parseFloat(k.High),
				Low:       parseFloat(k.Low),
				Close:     parseFloat(k.Close),
				Volume:    parseFloat(k.Volume),
			})
		}
		last := klines[len(klines)-1].OpenTime
		if last+step <= cursor {
			break
		}
		cursor = last + step
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
