// Package evaluation computes binary classification quality metrics.
package evaluation

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/fraudguard/pkg/classifiers"
)

// ClassReport holds per-class precision, recall, F1 and support.
type ClassReport struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is the evaluation of a binary classifier on a labelled set.
type Report struct {
	Accuracy float64
	// ROCAUC is NaN when the labelled set holds a single class.
	ROCAUC      float64
	Classes     [2]ClassReport
	MacroAvg    ClassReport
	WeightedAvg ClassReport
}

// DefaultClassNames label the Negative and Positive classes.
var DefaultClassNames = [2]string{"Not Fraud", "Fraud"}

// Evaluate compares predicted labels and Positive-class probabilities with
// the true labels.
func Evaluate(yTrue, yPred []int, proba []float64) (*Report, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("no samples to evaluate")
	}
	if len(yTrue) != len(yPred) || len(yTrue) != len(proba) {
		return nil, fmt.Errorf("length mismatch: %d labels, %d predictions, %d probabilities",
			len(yTrue), len(yPred), len(proba))
	}

	var confusion [2][2]int // [true][pred]
	correct := 0
	for i := range yTrue {
		confusion[yTrue[i]][yPred[i]]++
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	r := &Report{
		Accuracy: float64(correct) / float64(len(yTrue)),
		ROCAUC:   ROCAUC(yTrue, proba),
	}

	total := len(yTrue)
	for c := 0; c < 2; c++ {
		tp := confusion[c][c]
		predicted := confusion[0][c] + confusion[1][c]
		support := confusion[c][0] + confusion[c][1]

		cr := ClassReport{
			Name:      DefaultClassNames[c],
			Precision: safeDiv(float64(tp), float64(predicted)),
			Recall:    safeDiv(float64(tp), float64(support)),
			Support:   support,
		}
		cr.F1 = safeDiv(2*cr.Precision*cr.Recall, cr.Precision+cr.Recall)
		r.Classes[c] = cr

		r.MacroAvg.Precision += cr.Precision / 2
		r.MacroAvg.Recall += cr.Recall / 2
		r.MacroAvg.F1 += cr.F1 / 2

		w := float64(support) / float64(total)
		r.WeightedAvg.Precision += cr.Precision * w
		r.WeightedAvg.Recall += cr.Recall * w
		r.WeightedAvg.F1 += cr.F1 * w
	}
	r.MacroAvg.Name, r.MacroAvg.Support = "macro avg", total
	r.WeightedAvg.Name, r.WeightedAvg.Support = "weighted avg", total

	return r, nil
}

// ROCAUC returns the area under the ROC curve of proba against yTrue, or
// NaN when only one class is present.
func ROCAUC(yTrue []int, proba []float64) float64 {
	type pair struct {
		score    float64
		positive bool
	}
	pairs := make([]pair, len(yTrue))
	var positives int
	for i := range yTrue {
		pairs[i] = pair{score: proba[i], positive: yTrue[i] == classifiers.Positive}
		if pairs[i].positive {
			positives++
		}
	}
	if positives == 0 || positives == len(yTrue) {
		return math.NaN()
	}

	// stat.ROC requires scores in ascending order.
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
	scores := make([]float64, len(pairs))
	classes := make([]bool, len(pairs))
	for i, p := range pairs {
		scores[i] = p.score
		classes[i] = p.positive
	}

	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Render writes the per-class breakdown as a table.
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "precision", "recall", "f1-score", "support"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	rows := []ClassReport{r.Classes[0], r.Classes[1], r.MacroAvg, r.WeightedAvg}
	for _, cr := range rows {
		table.Append([]string{
			cr.Name,
			fmt.Sprintf("%.2f", cr.Precision),
			fmt.Sprintf("%.2f", cr.Recall),
			fmt.Sprintf("%.2f", cr.F1),
			fmt.Sprintf("%d", cr.Support),
		})
	}
	table.SetFooter([]string{"accuracy", "", "", fmt.Sprintf("%.2f", r.Accuracy), fmt.Sprintf("%d", r.MacroAvg.Support)})
	table.Render()
}
