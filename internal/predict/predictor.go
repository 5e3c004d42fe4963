// Package predict fits the baseline total-sales regressor. The model is
// ridge-regularized least squares over standardized features, with the
// penalty chosen by k-fold cross-validated RMSE over a fixed grid.
package predict

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/cytops/cytops/internal/table"
	"github.com/cytops/cytops/pkg/core"
)

// Columns excluded from the feature matrix: the target, the row
// identifier, and the raw date (replaced by day_of_week).
var excludedColumns = map[string]struct{}{
	core.ColTotalSalesAmountInEuro: {},
	core.ColProductDayID:           {},
	core.ColDate:                   {},
}

// Predictor trains and applies the sales model.
type Predictor struct {
	// Lambdas is the ridge penalty grid searched during training.
	Lambdas []float64
	// Folds is the number of cross-validation folds.
	Folds int
	// Seed fixes the fold shuffle for reproducible training.
	Seed int64

	logger *slog.Logger
	model  *fittedModel
}

type fittedModel struct {
	features  []string
	mean      []float64
	scale     []float64
	weights   []float64
	intercept float64
	lambda    float64
}

// New returns a Predictor with the default penalty grid and fold count.
func New(logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Predictor{
		Lambdas: []float64{0.01, 0.1, 1, 10, 100},
		Folds:   5,
		Seed:    42,
		logger:  logger,
	}
}

// Preprocess turns a feature table into a numeric design matrix and
// target vector. Dates must parse; day_of_week is derived from the date
// column and all remaining columns must be numeric.
func (p *Predictor) Preprocess(t *table.Table) (features []string, x [][]float64, y []float64, err error) {
	if t.Len() == 0 {
		return nil, nil, nil, fmt.Errorf("empty feature table")
	}

	dates, err := t.Column(core.ColDate)
	if err != nil {
		return nil, nil, nil, err
	}
	dayOfWeek := make([]float64, len(dates))
	for i, d := range dates {
		ts, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid date %q in feature table: %w", d, err)
		}
		// Monday = 0, matching the campaign convention.
		dayOfWeek[i] = float64((int(ts.Weekday()) + 6) % 7)
	}

	for _, col := range t.Columns() {
		if _, skip := excludedColumns[col]; skip {
			continue
		}
		features = append(features, col)
	}
	features = append(features, core.ColDayOfWeek)

	x = make([][]float64, t.Len())
	y = make([]float64, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := make([]float64, len(features))
		for j, col := range features {
			if col == core.ColDayOfWeek {
				row[j] = dayOfWeek[i]
				continue
			}
			v, err := t.Float(i, col)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("non-numeric feature: %w", err)
			}
			row[j] = v
		}
		x[i] = row

		target, err := t.Float(i, core.ColTotalSalesAmountInEuro)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("target: %w", err)
		}
		y[i] = target
	}
	return features, x, y, nil
}

// Train selects the ridge penalty by cross-validation on the training
// set, refits on the full training set, and reports the validation RMSE.
func (p *Predictor) Train(train, validation *table.Table) (validationRMSE float64, err error) {
	features, xTrain, yTrain, err := p.Preprocess(train)
	if err != nil {
		return 0, fmt.Errorf("train set: %w", err)
	}
	_, xVal, yVal, err := p.Preprocess(validation)
	if err != nil {
		return 0, fmt.Errorf("validation set: %w", err)
	}

	lambda, cvRMSE, err := p.selectLambda(xTrain, yTrain)
	if err != nil {
		return 0, err
	}
	p.logger.Debug("selected ridge penalty", "lambda", lambda, "cv_rmse", cvRMSE)

	m, err := fit(features, xTrain, yTrain, lambda)
	if err != nil {
		return 0, err
	}
	p.model = m

	pred := m.predict(xVal)
	validationRMSE = rmse(yVal, pred)
	p.logger.Info("model trained", "lambda", lambda, "validation_rmse", validationRMSE)
	return validationRMSE, nil
}

// Predict applies the trained model to a feature table.
func (p *Predictor) Predict(t *table.Table) ([]float64, error) {
	if p.model == nil {
		return nil, fmt.Errorf("model is not trained")
	}
	features, x, _, err := p.Preprocess(t)
	if err != nil {
		return nil, fmt.Errorf("test set: %w", err)
	}
	if len(features) != len(p.model.features) {
		return nil, fmt.Errorf("feature mismatch: trained on %d features, got %d", len(p.model.features), len(features))
	}
	for i, f := range features {
		if f != p.model.features[i] {
			return nil, fmt.Errorf("feature mismatch: trained on %v, got %v", p.model.features, features)
		}
	}
	return p.model.predict(x), nil
}

// AttachPredictions returns a copy of the table with a prediction column
// appended.
func (p *Predictor) AttachPredictions(t *table.Table) (*table.Table, error) {
	pred, err := p.Predict(t)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	values := make([]string, len(pred))
	for i, v := range pred {
		values[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	if err := out.AddColumn(core.ColPredictedSalesAmount, values); err != nil {
		return nil, err
	}
	return out, nil
}

// selectLambda runs k-fold cross-validation over the penalty grid and
// returns the penalty with the lowest mean RMSE.
func (p *Predictor) selectLambda(x [][]float64, y []float64) (lambda, bestRMSE float64, err error) {
	folds := p.Folds
	if folds > len(x) {
		folds = len(x)
	}
	if folds < 2 {
		// Too little data to cross-validate; take the smallest penalty.
		return p.Lambdas[0], math.NaN(), nil
	}

	rng := rand.New(rand.NewSource(p.Seed))
	perm := rng.Perm(len(x))

	bestRMSE = math.Inf(1)
	lambda = p.Lambdas[0]
	for _, l := range p.Lambdas {
		var total float64
		for f := 0; f < folds; f++ {
			var xTrain, xHold [][]float64
			var yTrain, yHold []float64
			for i, idx := range perm {
				if i%folds == f {
					xHold = append(xHold, x[idx])
					yHold = append(yHold, y[idx])
				} else {
					xTrain = append(xTrain, x[idx])
					yTrain = append(yTrain, y[idx])
				}
			}
			m, err := fit(nil, xTrain, yTrain, l)
			if err != nil {
				return 0, 0, err
			}
			total += rmse(yHold, m.predict(xHold))
		}
		mean := total / float64(folds)
		if mean < bestRMSE {
			bestRMSE = mean
			lambda = l
		}
	}
	return lambda, bestRMSE, nil
}

// fit solves the standardized ridge system (X'X + lambda*I) w = X'y on
// centered data. The intercept absorbs the target mean and is not
// penalized.
func fit(features []string, x [][]float64, y []float64, lambda float64) (*fittedModel, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	n := len(x)
	d := len(x[0])

	mean := make([]float64, d)
	scale := make([]float64, d)
	for j := 0; j < d; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x[i][j]
		}
		mean[j] = sum / float64(n)
		var varSum float64
		for i := 0; i < n; i++ {
			diff := x[i][j] - mean[j]
			varSum += diff * diff
		}
		scale[j] = math.Sqrt(varSum / float64(n))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	var yMean float64
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	z := make([][]float64, n)
	for i := 0; i < n; i++ {
		z[i] = make([]float64, d)
		for j := 0; j < d; j++ {
			z[i][j] = (x[i][j] - mean[j]) / scale[j]
		}
	}

	// Normal equations on the standardized, centered system.
	a := make([][]float64, d)
	b := make([]float64, d)
	for j := 0; j < d; j++ {
		a[j] = make([]float64, d)
		for k := 0; k < d; k++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += z[i][j] * z[i][k]
			}
			a[j][k] = sum
		}
		a[j][j] += lambda
		var sum float64
		for i := 0; i < n; i++ {
			sum += z[i][j] * (y[i] - yMean)
		}
		b[j] = sum
	}

	w, err := solve(a, b)
	if err != nil {
		return nil, err
	}

	return &fittedModel{
		features:  features,
		mean:      mean,
		scale:     scale,
		weights:   w,
		intercept: yMean,
		lambda:    lambda,
	}, nil
}

func (m *fittedModel) predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		v := m.intercept
		for j, w := range m.weights {
			v += w * (row[j] - m.mean[j]) / m.scale[j]
		}
		out[i] = v
	}
	return out
}

// solve performs Gaussian elimination with partial pivoting.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, fmt.Errorf("singular feature matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		v := b[row]
		for k := row + 1; k < n; k++ {
			v -= a[row][k] * x[k]
		}
		x[row] = v / a[row][row]
	}
	return x, nil
}

func rmse(actual, predicted []float64) float64 {
	if len(actual) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range actual {
		diff := actual[i] - predicted[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(actual)))
}
