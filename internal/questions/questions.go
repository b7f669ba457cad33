// Package questions loads the question bank from JSON, YAML or CSV files.
package questions

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/cloudhire/internal/model"
)

// Store is the subset of the store the importer needs.
type Store interface {
	UpsertQuestion(q model.Question) (int64, error)
	IsFileImported(hash string) (bool, error)
	RecordImport(hash, filename string, questions int) error
}

// ErrUnsupportedFormat is returned for files that are not .json, .yaml, .yml or .csv.
var ErrUnsupportedFormat = errors.New("unsupported question file format")

var validate = validator.New(validator.WithRequiredStructEnabled())

// keyPrefix gives generated keys a readable section prefix: mc1, c1, calc1, b1.
var keyPrefix = map[model.Section]string{
	model.SectionMultipleChoice: "mc",
	model.SectionConcept:        "c",
	model.SectionCalculation:    "calc",
	model.SectionBehavioral:     "b",
}

// csvTypes maps the CSV "type" column onto sections. Both the camelCase
// names used by the original spreadsheets and the section names are accepted.
var csvTypes = map[string]model.Section{
	"multiplechoice":  model.SectionMultipleChoice,
	"multiple_choice": model.SectionMultipleChoice,
	"concepts":        model.SectionConcept,
	"concept":         model.SectionConcept,
	"calculations":    model.SectionCalculation,
	"calculation":     model.SectionCalculation,
	"behavioral":      model.SectionBehavioral,
}

// Parse decodes a question file, choosing the format by file extension, and
// validates every entry. Questions without a key get one derived from their
// section and position.
func Parse(filename string, data []byte) ([]model.Question, error) {
	var items []model.QuestionImport
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		err = json.Unmarshal(data, &items)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &items)
	case ".csv":
		items, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	counts := map[model.Section]int{}
	seen := map[string]bool{}
	out := make([]model.Question, 0, len(items))
	for i, qi := range items {
		if err := validate.Struct(qi); err != nil {
			return nil, fmt.Errorf("%s: question %d: %w", filename, i+1, err)
		}
		counts[qi.Section]++
		key := strings.TrimSpace(qi.Key)
		if key == "" {
			key = keyPrefix[qi.Section] + strconv.Itoa(counts[qi.Section])
		}
		if seen[key] {
			return nil, fmt.Errorf("%s: duplicate question key %q", filename, key)
		}
		seen[key] = true
		if qi.Section == model.SectionMultipleChoice && len(qi.Options) < 2 {
			return nil, fmt.Errorf("%s: question %q: multiple choice needs at least two options", filename, key)
		}
		out = append(out, model.Question{
			Key:           key,
			Section:       qi.Section,
			Text:          strings.TrimSpace(qi.Text),
			Category:      qi.Category,
			Difficulty:    qi.Difficulty,
			Points:        qi.Points,
			Options:       qi.Options,
			CorrectAnswer: strings.TrimSpace(qi.CorrectAnswer),
		})
	}
	return out, nil
}

// parseCSV reads the spreadsheet layout
// ID,question,type,category,difficulty,points,options[,correct_answer]
// where options are separated by "|". Rows with fewer than six columns are
// skipped.
func parseCSV(data []byte) ([]model.QuestionImport, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var items []model.QuestionImport
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 6 {
			slog.Debug("skipping short CSV row", "line", line, "columns", len(rec))
			continue
		}
		section, ok := csvTypes[strings.ToLower(strings.TrimSpace(rec[2]))]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown question type %q", line, rec[2])
		}
		points, err := strconv.Atoi(strings.TrimSpace(rec[5]))
		if err != nil {
			return nil, fmt.Errorf("line %d: points: %w", line, err)
		}
		qi := model.QuestionImport{
			Section:    section,
			Text:       rec[1],
			Category:   strings.TrimSpace(rec[3]),
			Difficulty: strings.TrimSpace(rec[4]),
			Points:     points,
		}
		if id := strings.TrimSpace(rec[0]); id != "" {
			qi.Key = keyPrefix[section] + id
		}
		if len(rec) > 6 && strings.TrimSpace(rec[6]) != "" {
			for _, o := range strings.Split(rec[6], "|") {
				qi.Options = append(qi.Options, strings.TrimSpace(o))
			}
		}
		if len(rec) > 7 {
			qi.CorrectAnswer = rec[7]
		}
		items = append(items, qi)
	}
	return items, nil
}

// Import parses a question file and stores its questions. A file whose
// content was imported before is skipped and reports zero questions.
func Import(s Store, filename string, data []byte) (int, error) {
	hash := sha256sum(data)
	done, err := s.IsFileImported(hash)
	if err != nil {
		return 0, fmt.Errorf("check import status for %s: %w", filename, err)
	}
	if done {
		slog.Info("questions file unchanged, skipping", "file", filename)
		return 0, nil
	}

	qs, err := Parse(filename, data)
	if err != nil {
		return 0, err
	}
	for _, q := range qs {
		if _, err := s.UpsertQuestion(q); err != nil {
			return 0, fmt.Errorf("store question %s from %s: %w", q.Key, filename, err)
		}
	}
	if err := s.RecordImport(hash, filepath.Base(filename), len(qs)); err != nil {
		return 0, fmt.Errorf("record import for %s: %w", filename, err)
	}
	slog.Info("imported questions", "file", filename, "count", len(qs))
	return len(qs), nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
