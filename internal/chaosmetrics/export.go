package chaosmetrics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

type exportedMetric struct {
	Metric string               `json:"metric"`
	Points []models.MetricPoint `json:"points"`
}

// Export serialises all retained metrics. JSON shape:
// [{metric, points:[{timestamp, value, tags}]}].
func (s *Store) Export(format ExportFormat) ([]byte, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.points))
	for name := range s.points {
		names = append(names, name)
	}
	sort.Strings(names)
	exported := make([]exportedMetric, 0, len(names))
	for _, name := range names {
		exported = append(exported, exportedMetric{
			Metric: name,
			Points: append([]models.MetricPoint(nil), s.points[name]...),
		})
	}
	s.mu.RUnlock()

	switch format {
	case FormatJSON:
		return json.Marshal(exported)
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"metric", "timestamp", "value"}); err != nil {
			return nil, err
		}
		for _, metric := range exported {
			for _, point := range metric.Points {
				record := []string{
					metric.Metric,
					point.Timestamp.Format(time.RFC3339Nano),
					strconv.FormatFloat(point.Value, 'f', -1, 64),
				}
				if err := w.Write(record); err != nil {
					return nil, err
				}
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
