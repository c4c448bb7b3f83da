package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"stravaldi/internal/database"
)

// baseFields is the ordered set of activity fields included in the export
var baseFields = []string{
	"id", "name", "distance", "moving_time",
	"elapsed_time", "total_elevation_gain", "type",
	"start_date", "start_latlng", "average_speed",
	"average_temp", "average_cadence", "calories",
	"description", "average_heartrate", "max_heartrate",
	"suffer_score",
}

// painPattern matches "name: value" lines in an activity's private note
var painPattern = regexp.MustCompile(`(.+):(.+)`)

// Exporter writes cached activities as a flattened CSV timeline
type Exporter struct {
	db     *database.DB
	logger *slog.Logger
}

// New creates a new Exporter
func New(db *database.DB) *Exporter {
	return &Exporter{
		db:     db,
		logger: slog.Default(),
	}
}

// record is one flattened activity row
type record struct {
	fields map[string]string
	pains  map[string]float64
}

// WriteCSV exports all cached activities for a user. Each row carries the
// selected base fields plus one pains.<name> column per pain score parsed
// from the activity's private note; the header is the union of pain columns
// across all rows.
func (e *Exporter) WriteCSV(w io.Writer, userID string) error {
	activities, err := e.db.ListActivities(userID)
	if err != nil {
		return fmt.Errorf("failed to list activities: %w", err)
	}

	records := make([]record, 0, len(activities))
	painColumns := make(map[string]bool)

	for _, activity := range activities {
		rec, err := e.flatten(activity)
		if err != nil {
			e.logger.Error("Skipping malformed activity", "activity_id", activity.ID, "error", err)
			continue
		}
		for name := range rec.pains {
			painColumns[name] = true
		}
		records = append(records, rec)
	}

	painHeader := make([]string, 0, len(painColumns))
	for name := range painColumns {
		painHeader = append(painHeader, name)
	}
	sort.Strings(painHeader)

	cw := csv.NewWriter(w)

	header := append(append([]string{}, baseFields...), painHeader...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range records {
		row := make([]string, 0, len(header))
		for _, field := range baseFields {
			row = append(row, rec.fields[field])
		}
		for _, name := range painHeader {
			if value, ok := rec.pains[name]; ok {
				row = append(row, strconv.FormatFloat(value, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	return nil
}

// flatten decodes an activity's raw JSON into the selected columns and
// parses pain scores from its private note
func (e *Exporter) flatten(activity *database.Activity) (record, error) {
	var payload map[string]any
	if err := json.Unmarshal(activity.Raw, &payload); err != nil {
		return record{}, fmt.Errorf("failed to decode raw payload: %w", err)
	}

	rec := record{
		fields: make(map[string]string, len(baseFields)),
		pains:  parsePains(payload, e.logger, activity.ID),
	}
	for _, field := range baseFields {
		rec.fields[field] = formatValue(payload[field])
	}

	return rec, nil
}

// parsePains extracts "name: value" pain scores from the private_note
// field. A note that doesn't parse is logged and skipped, never fatal.
func parsePains(payload map[string]any, logger *slog.Logger, activityID int64) map[string]float64 {
	note, _ := payload["private_note"].(string)
	if note == "" {
		return nil
	}

	pains := make(map[string]float64)
	for _, line := range strings.Split(note, "\n") {
		matches := painPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		name := strings.ToLower(strings.TrimSpace(matches[1]))
		value, err := strconv.ParseFloat(strings.TrimSpace(matches[2]), 64)
		if err != nil {
			logger.Warn("Unparseable pain score in private note",
				"activity_id", activityID,
				"entry", strings.TrimSpace(line))
			continue
		}

		pains["pains."+name] = value
	}

	if len(pains) == 0 {
		return nil
	}
	return pains
}

// formatValue renders a decoded JSON value as a CSV cell
func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		// Arrays (start_latlng) and nested objects stay JSON-encoded
		encoded, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
