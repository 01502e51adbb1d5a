package data

import (
	"context"

	"stratbench/internal/market"
)

// Provider 统一上游历史数据源的拉取行为。缓存层是它的唯一调用方。
type Provider interface {
	Fetch(ctx context.Context, symbol string, res market.Resolution, start, end int64) ([]market.Bar, error)
	Name() string
}
