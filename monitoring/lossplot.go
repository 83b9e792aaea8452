package monitoring

import (
	"errors"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoLoss is returned when there is no loss history to plot.
var ErrNoLoss = errors.New("loss history is empty")

func lossPlot(loss []float64, title string) (*plot.Plot, error) {
	if len(loss) == 0 {
		return nil, ErrNoLoss
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Squared error"

	pts := make(plotter.XYs, len(loss))
	for i, v := range loss {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	p.Add(line, plotter.NewGrid())
	return p, nil
}

// PlotLoss saves the per-epoch loss curve. The image format follows the file extension.
func PlotLoss(loss []float64, title, path string) error {
	p, err := lossPlot(loss, title)
	if err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// WriteLossPNG renders the loss curve as PNG to w.
func WriteLossPNG(w io.Writer, loss []float64, title string) error {
	p, err := lossPlot(loss, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
