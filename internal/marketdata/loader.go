package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quantlab/backgrid/internal/core"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Loader reads picks and price bars from local CSV files into a Series.
// Ingestion from market-data providers happens upstream; this engine only
// ever sees flat files.
type Loader struct {
	logger *zap.Logger

	// BadRows counts unparseable rows skipped during the last load.
	BadRows int
}

// NewLoader creates a Loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads the pick and bar files into a sorted, ready-to-simulate Series.
func (l *Loader) Load(picksPath, barsPath string) (*Series, error) {
	series := NewSeries()

	if err := l.loadPicks(series, picksPath); err != nil {
		return nil, err
	}
	if err := l.loadBars(series, barsPath); err != nil {
		return nil, err
	}

	series.Sort()
	l.logger.Info("market data loaded",
		zap.Int("picks", len(series.Picks(nil))),
		zap.Int("tickers", series.Tickers()),
		zap.Int("bad_rows", l.BadRows),
	)
	return series, nil
}

// loadPicks parses rows of: ticker,date,entry_price,algorithm
func (l *Loader) loadPicks(series *Series, path string) error {
	return l.readCSV(path, 4, func(rec []string) error {
		date, err := time.Parse(dateLayout, strings.TrimSpace(rec[1]))
		if err != nil {
			return err
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return err
		}
		series.AddPick(core.Pick{
			Ticker:     strings.ToUpper(strings.TrimSpace(rec[0])),
			EntryDate:  date,
			EntryPrice: price,
			Algorithm:  strings.ToUpper(strings.TrimSpace(rec[3])),
		})
		return nil
	})
}

// loadBars parses rows of: ticker,date,open,high,low,close
func (l *Loader) loadBars(series *Series, path string) error {
	return l.readCSV(path, 6, func(rec []string) error {
		date, err := time.Parse(dateLayout, strings.TrimSpace(rec[1]))
		if err != nil {
			return err
		}
		vals := make([]float64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[2+i]), 64)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		return series.AddBar(core.PriceBar{
			Ticker: strings.ToUpper(strings.TrimSpace(rec[0])),
			Date:   date,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
		})
	})
}

// readCSV streams a file row by row. Rows that fail to parse are counted and
// skipped rather than failing the load; a truncated header line is tolerated.
func (l *Loader) readCSV(path string, fields int, parse func([]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		line++
		if len(rec) < fields {
			l.BadRows++
			continue
		}
		// Skip a header row if present.
		if line == 1 && !isNumeric(rec[2]) {
			continue
		}
		if err := parse(rec); err != nil {
			l.BadRows++
			l.logger.Debug("skipping bad row",
				zap.String("file", path), zap.Int("line", line), zap.Error(err))
		}
	}
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}
