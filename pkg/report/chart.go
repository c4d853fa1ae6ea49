package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

// RenderChart draws the top n rows of a report as a PNG bar chart of fraud
// probability.
func RenderChart(w io.Writer, rpt *dataset.Table, n int) error {
	if rpt.Len() == 0 {
		return errors.New("report has no rows to chart")
	}

	top := rpt.Head(n)
	probs, err := top.Column(ProbabilityLabel)
	if err != nil {
		return err
	}
	users, err := top.Column(UserLabel)
	if err != nil {
		return err
	}
	times, err := top.Column(TimeLabel)
	if err != nil {
		return err
	}

	bars := make([]chart.Value, len(probs))
	for i := range probs {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("u%.0f @%.0fs", users[i], times[i]),
			Value: probs[i],
		}
	}

	barChart := chart.BarChart{
		Title: "Highest-risk transactions",
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    max(400, 90*len(bars)),
		Height:   400,
		BarWidth: 50,
		Bars:     bars,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: func(v interface{}) string {
				if vf, isFloat := v.(float64); isFloat {
					return fmt.Sprintf("%.0f%%", vf)
				}
				return ""
			},
		},
	}

	return barChart.Render(chart.PNG, w)
}
