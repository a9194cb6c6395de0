package net

import (
	"encoding/csv"
	"log/slog"
	"os"
	"strconv"
)

// CSVLogger logs per-epoch metrics to a CSV file.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	// Err holds the first failure to open or write the file.
	Err error
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

var csvHeader = []string{"epoch", "loss", "accuracy", "test_loss", "test_accuracy", "lr", "time_seconds"}

func (c *CSVLogger) OnTrainBegin(n *Network) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		c.fail(err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.write(csvHeader)
	}
}

func (c *CSVLogger) OnEpochEnd(stats EpochStats, n *Network) {
	if c.writer == nil {
		return
	}

	testLoss, testAcc := "", ""
	if stats.HasTest {
		testLoss = formatFloat(stats.TestLoss)
		testAcc = formatFloat(stats.TestAccuracy)
	}
	c.write([]string{
		strconv.Itoa(stats.Epoch),
		formatFloat(stats.TrainLoss),
		formatFloat(stats.TrainAccuracy),
		testLoss,
		testAcc,
		formatFloat(stats.LearningRate),
		strconv.FormatFloat(stats.Elapsed.Seconds(), 'f', 2, 64),
	})
}

func (c *CSVLogger) OnTrainEnd(n *Network, h *History) {
	if c.file != nil {
		c.writer.Flush()
		if err := c.file.Close(); err != nil {
			c.fail(err)
		}
		c.file = nil
		c.writer = nil
	}
}

func (c *CSVLogger) write(record []string) {
	if err := c.writer.Write(record); err != nil {
		c.fail(err)
		return
	}
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		c.fail(err)
	}
}

func (c *CSVLogger) fail(err error) {
	if c.Err == nil {
		c.Err = err
	}
	slog.Error("csv logger", "file", c.Filename, "err", err)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
