package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"mercari/monitor/internal/domain"

	log "github.com/sirupsen/logrus"
)

// CSVWriter appends sweep results to per-day CSV files under the
// configured results directory.
type CSVWriter struct {
	dir string
}

func NewCSVWriter(dir string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}
	return &CSVWriter{dir: dir}, nil
}

var csvHeader = []string{"id", "title", "price", "url", "image_url", "sold", "like_count", "keyword", "extracted_at"}

// Append writes the products to today's file, creating it with a
// header row when absent.
func (w *CSVWriter) Append(products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	path := filepath.Join(w.dir, time.Now().Format("2006-01-02")+".csv")
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	for _, p := range products {
		keyword := ""
		if len(p.Keywords) > 0 {
			keyword = p.Keywords[0]
		}
		row := []string{
			p.ID,
			p.Title,
			strconv.Itoa(p.Price),
			p.URL,
			p.ImageURL,
			strconv.FormatBool(p.Sold),
			strconv.Itoa(p.LikeCount),
			keyword,
			p.ExtractedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", p.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	log.Debugf("Appended %d rows to %s", len(products), path)
	return nil
}
