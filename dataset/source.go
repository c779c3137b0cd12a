package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"rentalpricing/config"
	"rentalpricing/db"
)

// Source loads the full dataset. Implementations are safe for concurrent use.
type Source interface {
	Load(ctx context.Context) (*Frame, error)
	Name() string
}

// HTTPSource downloads a CSV file on every Load.
type HTTPSource struct {
	url      string
	encoding string
	client   *http.Client
}

func NewHTTPSource(url, encoding string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:      url,
		encoding: encoding,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSource) Name() string { return s.url }

func (s *HTTPSource) Load(ctx context.Context) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", s.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	r, err := decodeReader(resp.Body, s.encoding)
	if err != nil {
		return nil, err
	}
	return ParseCSV(r)
}

// FileSource reads a local CSV file on every Load.
type FileSource struct {
	path     string
	encoding string
}

func NewFileSource(path, encoding string) *FileSource {
	return &FileSource{path: path, encoding: encoding}
}

func (s *FileSource) Name() string { return s.path }

func (s *FileSource) Load(_ context.Context) (*Frame, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r, err := decodeReader(file, s.encoding)
	if err != nil {
		return nil, err
	}
	return ParseCSV(r)
}

// SQLSource reads a whole table through a connection pool opened once by
// NewSQLSource. Close releases the pool.
type SQLSource struct {
	driver   string
	table    string
	database *sqlx.DB
}

func NewSQLSource(ctx context.Context, driver, dsn, table string) (*SQLSource, error) {
	database, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return &SQLSource{driver: driver, table: table, database: database}, nil
}

func (s *SQLSource) Name() string { return s.driver + ":" + s.table }

func (s *SQLSource) Close() error { return s.database.Close() }

func (s *SQLSource) Load(ctx context.Context) (*Frame, error) {
	columns, records, err := db.ReadTable(ctx, s.database, s.table)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Columns: columns, Rows: make([]Record, len(records))}
	for i, record := range records {
		frame.Rows[i] = Record(record)
	}
	return frame, nil
}

// NewSource builds the source described by cfg, wrapped in a cache when
// cfg.CacheTTL is positive. A sql source connects here; release it with
// CloseSource.
func NewSource(ctx context.Context, cfg config.DatasetConfig) (Source, error) {
	if cfg.Encoding != "" {
		if _, err := htmlindex.Get(cfg.Encoding); err != nil {
			return nil, fmt.Errorf("unsupported dataset encoding %q: %w", cfg.Encoding, err)
		}
	}

	var src Source
	switch cfg.Kind {
	case "http":
		src = NewHTTPSource(cfg.URL, cfg.Encoding, cfg.FetchTimeout)
	case "file":
		src = NewFileSource(cfg.Path, cfg.Encoding)
	case "sql":
		sqlSrc, err := NewSQLSource(ctx, cfg.Driver, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		src = sqlSrc
	default:
		return nil, fmt.Errorf("unknown dataset kind %q", cfg.Kind)
	}

	if cfg.CacheTTL > 0 {
		src = NewCachedSource(src, cfg.CacheTTL)
	}
	return src, nil
}

// CloseSource releases any connections held by src.
func CloseSource(src Source) error {
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func decodeReader(r io.Reader, name string) (io.Reader, error) {
	if name == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
