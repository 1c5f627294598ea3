// Package report summarises segmentation results per class.
package report

import (
	"fmt"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/attnunet/metric"
)

// ClassNames returns names for n classes, taking given names first and
// filling the rest with "class_i".
func ClassNames(n int, names []string) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(names) && names[i] != "" {
			out[i] = names[i]
			continue
		}
		out[i] = fmt.Sprintf("class_%d", i)
	}
	return out
}

// ClassCounts counts predicted pixels of every class.
func ClassCounts(pred []int64, nclasses int) ([]int64, error) {
	counts := make([]int64, nclasses)
	for i, c := range pred {
		if c < 0 || int(c) >= nclasses {
			return nil, fmt.Errorf("Class out of range at %v: %v", i, c)
		}
		counts[c]++
	}
	return counts, nil
}

// PredictionSummary returns a dataframe with columns class, pixels and fraction.
func PredictionSummary(counts []int64, names []string) dataframe.DataFrame {
	names = ClassNames(len(counts), names)

	var total int64
	for _, c := range counts {
		total += c
	}

	pixels := make([]int, len(counts))
	fractions := make([]float64, len(counts))
	for i, c := range counts {
		pixels[i] = int(c)
		if total > 0 {
			fractions[i] = float64(c) / float64(total)
		}
	}

	return dataframe.New(
		series.New(names, series.String, "class"),
		series.New(pixels, series.Int, "pixels"),
		series.New(fractions, series.Float, "fraction"),
	)
}

// EvalSummary returns a dataframe with columns class, pixels (ground truth),
// predicted, iou and dice from a confusion matrix.
func EvalSummary(cm [][]int64, names []string) dataframe.DataFrame {
	n := len(cm)
	names = ClassNames(n, names)

	pixels := make([]int, n)
	predicted := make([]int, n)
	for t := range cm {
		for p, v := range cm[t] {
			pixels[t] += int(v)
			predicted[p] += int(v)
		}
	}

	return dataframe.New(
		series.New(names, series.String, "class"),
		series.New(pixels, series.Int, "pixels"),
		series.New(predicted, series.Int, "predicted"),
		series.New(metric.IoU(cm), series.Float, "iou"),
		series.New(metric.Dice(cm), series.Float, "dice"),
	)
}

// WriteCSV writes dataframe to a csv file.
func WriteCSV(df dataframe.DataFrame, filename string) error {
	if df.Err != nil {
		return df.Err
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// SaveHistogram saves a bar chart of pixel counts per class.
func SaveHistogram(counts []int64, names []string, filename string) error {
	if len(counts) == 0 {
		return fmt.Errorf("No class counts to plot")
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Pixels per class"
	p.Y.Label.Text = "pixels"

	v := make(plotter.Values, len(counts))
	for i, c := range counts {
		v[i] = float64(c)
	}

	bars, err := plotter.NewBarChart(v, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(ClassNames(len(counts), names)...)

	return p.Save(4*vg.Inch, 4*vg.Inch, filename)
}
