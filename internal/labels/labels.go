// Package labels loads the class label table: a JSON array of names
// indexed by output class.
package labels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxTableBytes caps how much of a label source is read.
const maxTableBytes = 8 << 20

// Table maps a class index to its human-readable name.
type Table []string

// Lookup returns the name for index and whether the table has one.
func (t Table) Lookup(index int) (string, bool) {
	if index < 0 || index >= len(t) {
		return "", false
	}

	return t[index], true
}

// Name returns the label for index or a synthesized "Class {index}".
func (t Table) Name(index int) string {
	if name, ok := t.Lookup(index); ok && name != "" {
		return name
	}

	return fmt.Sprintf("Class %d", index)
}

// Parse decodes a JSON array of label strings.
func Parse(r io.Reader) (Table, error) {
	var table Table
	if err := json.NewDecoder(io.LimitReader(r, maxTableBytes)).Decode(&table); err != nil {
		return nil, fmt.Errorf("failed to parse label table: %w", err)
	}

	return table, nil
}

// Fetch reads the label table from a local path or an http(s) URL.
func Fetch(ctx context.Context, source string, timeout time.Duration) (Table, error) {
	if source == "" {
		return nil, fmt.Errorf("no label source configured")
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchURL(ctx, source, timeout)
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open label table: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Load fetches the label table once. Any failure degrades to an empty table,
// so every label falls back to its synthesized "Class {index}" name.
func Load(ctx context.Context, source string, timeout time.Duration, logger *zap.Logger) Table {
	table, err := Fetch(ctx, source, timeout)
	if err != nil {
		logger.Warn("label table unavailable, using synthesized class names",
			zap.String("source", source),
			zap.Error(err),
		)
		return Table{}
	}

	logger.Info("label table loaded", zap.String("source", source), zap.Int("classes", len(table)))
	return table
}

func fetchURL(ctx context.Context, url string, timeout time.Duration) (Table, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch label table: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("label table fetch returned status %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}
