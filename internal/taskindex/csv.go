package taskindex

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// csvTimeLayout matches the layout the original flat-file index used.
const csvTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"task", "email", "repo_name", "repo_url", "latest_commit_sha",
	"pages_url", "latest_round", "created_at", "updated_at",
}

// CSVStore persists the index as one flat CSV file, compatible with the
// layout of earlier deployments: read the whole file, mutate in memory,
// write the whole file, all under one lock. Fine at test scale; prefer
// SQLiteStore for anything beyond that.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*CSVStore)(nil)

// OpenCSV opens (creating with a header if needed) the index file.
func OpenCSV(path string) (*CSVStore, error) {
	s := &CSVStore{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeAll(nil); err != nil {
			return nil, fmt.Errorf("initialize index file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat index file: %w", err)
	}
	return s, nil
}

func (s *CSVStore) Get(ctx context.Context, taskID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].TaskID == taskID {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *CSVStore) Upsert(ctx context.Context, taskID string, upd Update) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)

	var rec *Record
	for i := range records {
		if records[i].TaskID == taskID {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		records = append(records, Record{TaskID: taskID, CreatedAt: now})
		rec = &records[len(records)-1]
	}
	upd.apply(rec, now)

	if err := s.writeAll(records); err != nil {
		return nil, err
	}
	out := *rec
	return &out, nil
}

func (s *CSVStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.TaskID != taskID {
			kept = append(kept, rec)
		}
	}
	return s.writeAll(kept)
}

func (s *CSVStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) readAll() ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("malformed index row: %d columns", len(row))
		}
		round, err := strconv.Atoi(row[6])
		if err != nil {
			return nil, fmt.Errorf("malformed round in index row: %w", err)
		}
		createdAt, err := time.Parse(csvTimeLayout, row[7])
		if err != nil {
			return nil, fmt.Errorf("malformed created_at in index row: %w", err)
		}
		updatedAt, err := time.Parse(csvTimeLayout, row[8])
		if err != nil {
			return nil, fmt.Errorf("malformed updated_at in index row: %w", err)
		}
		records = append(records, Record{
			TaskID:          row[0],
			Email:           row[1],
			RepoName:        row[2],
			RepoURL:         row[3],
			LatestCommitSHA: row[4],
			PagesURL:        row[5],
			LatestRound:     round,
			CreatedAt:       createdAt,
			UpdatedAt:       updatedAt,
		})
	}
	return records, nil
}

func (s *CSVStore) writeAll(records []Record) error {
	// Write to a sibling temp file and rename so a crash mid-write
	// cannot truncate the index.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".taskindex-*.csv")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("write index header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.TaskID,
			rec.Email,
			rec.RepoName,
			rec.RepoURL,
			rec.LatestCommitSHA,
			rec.PagesURL,
			strconv.Itoa(rec.LatestRound),
			rec.CreatedAt.Format(csvTimeLayout),
			rec.UpdatedAt.Format(csvTimeLayout),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write index row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}
