package report

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"stratbench/internal/engine"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorCash          = "#fbbf24"
	colorDrawdown      = "#f87171"

	chartWidthPx     = 1600
	equityHeightPx   = 600
	drawdownHeightPx = 300
)

// BuildHTML 把一次回测的资金曲线和回撤画成自包含的 HTML 页面，
// 既可以直接返回给浏览器，也可以交给 chromedp 截成 PNG。
func BuildHTML(title string, outcome *engine.Outcome, metrics Metrics) ([]byte, error) {
	if outcome == nil || len(outcome.EquityCurve) == 0 {
		return nil, fmt.Errorf("资金曲线为空，无图可画")
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		buildEquityChart(title, outcome, metrics),
		buildDrawdownChart(outcome.EquityCurve),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildEquityChart(title string, outcome *engine.Outcome, metrics Metrics) *charts.Line {
	curve := outcome.EquityCurve
	xAxis := buildXAxis(curve)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         strings.ToUpper(title),
			Subtitle:      metricsSubtitle(metrics),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	equity := make([]opts.LineData, len(curve))
	cash := make([]opts.LineData, len(curve))
	for i, snap := range curve {
		equity[i] = opts.LineData{Value: round(snap.Equity, 2)}
		cash[i] = opts.LineData{Value: round(snap.Cash, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", equity,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Cash", cash,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 1}))
	return line
}

func buildDrawdownChart(curve []engine.Snapshot) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", drawdownHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary, Formatter: "{value} %"},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)

	data := make([]opts.LineData, len(curve))
	peak := curve[0].Equity
	for i, snap := range curve {
		if snap.Equity > peak {
			peak = snap.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (1 - snap.Equity/peak) * 100
		}
		data[i] = opts.LineData{Value: -round(dd, 2)}
	}
	line.SetXAxis(buildXAxis(curve))
	line.AddSeries("Drawdown", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.25)}))
	return line
}

func buildXAxis(curve []engine.Snapshot) []string {
	x := make([]string, len(curve))
	for i, snap := range curve {
		x[i] = time.UnixMilli(snap.Timestamp).UTC().Format("01-02 15:04")
	}
	return x
}

func metricsSubtitle(m Metrics) string {
	return fmt.Sprintf("收益 %.2f%% | 最大回撤 %.2f%% | Sharpe %.2f | 胜率 %.1f%% | 成交 %d",
		m.TotalReturn*100, m.MaxDrawdown*100, m.Sharpe, m.WinRate*100, m.FilledCount)
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
