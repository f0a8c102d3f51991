package lstm

import "runtime"

// Config describes the network shape and the optimizer schedule.
type Config struct {
	Window          int     `json:"window"`
	Features        int     `json:"features"`
	Units           int     `json:"units"`
	Layers          int     `json:"layers"`
	Dropout         float64 `json:"dropout"`
	LearningRate    float64 `json:"learning_rate"`
	Beta1           float64 `json:"beta1"`
	Beta2           float64 `json:"beta2"`
	Epsilon         float64 `json:"epsilon"`
	Epochs          int     `json:"epochs"`
	BatchSize       int     `json:"batch_size"`
	ValidationSplit float64 `json:"validation_split"`
	// Workers bounds the goroutines computing per-batch gradients. 0 means GOMAXPROCS.
	Workers int `json:"-"`
}

// DefaultConfig is two stacked 50-unit layers over 60x5 windows, trained
// with Adam for 30 epochs.
func DefaultConfig() Config {
	return Config{
		Window:          60,
		Features:        5,
		Units:           50,
		Layers:          2,
		Dropout:         0.2,
		LearningRate:    0.002,
		Beta1:           0.9,
		Beta2:           0.999,
		Epsilon:         1e-7,
		Epochs:          30,
		BatchSize:       64,
		ValidationSplit: 0.05,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Features <= 0 {
		c.Features = d.Features
	}
	if c.Units <= 0 {
		c.Units = d.Units
	}
	if c.Layers <= 0 {
		c.Layers = d.Layers
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		c.Dropout = d.Dropout
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Beta1 <= 0 || c.Beta1 >= 1 {
		c.Beta1 = d.Beta1
	}
	if c.Beta2 <= 0 || c.Beta2 >= 1 {
		c.Beta2 = d.Beta2
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		c.ValidationSplit = d.ValidationSplit
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}
