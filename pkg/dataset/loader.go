package dataset

import (
	"context"
	"sort"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/rs/zerolog"

	"github.com/botscope/botscope/pkg/table"
)

// Tables maps a logical file name to its decoded table.
// The caller owns the tables and must Release them.
type Tables map[string]arrow.Table

// Release releases every table.
func (t Tables) Release() {
	for _, tbl := range t {
		tbl.Release()
	}
}

// PathResolver is what a Loader needs from a Resolver.
type PathResolver interface {
	Resolve(ctx context.Context, forceRefresh bool) (Paths, error)
}

// Loader decodes the resolved dataset files into tables.
type Loader struct {
	resolver PathResolver
	csv      table.CSVOptions
	log      zerolog.Logger
}

// NewLoader creates a loader. A zero CSVOptions uses the defaults.
func NewLoader(r PathResolver, csv table.CSVOptions, log zerolog.Logger) *Loader {
	return &Loader{resolver: r, csv: csv, log: log}
}

// Load resolves the dataset without forcing a refresh and decodes every file.
// If any file fails, tables decoded so far are released and no partial
// dataset is returned.
func (l *Loader) Load(ctx context.Context) (Tables, error) {
	paths, err := l.resolver.Resolve(ctx, false)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Tables, len(paths))
	for _, name := range names {
		tbl, err := table.ReadCSVFile(ctx, paths[name], l.csv)
		if err != nil {
			out.Release()
			return nil, err
		}
		l.log.Debug().Str("file", name).Int64("rows", tbl.NumRows()).Msg("loaded")
		out[name] = tbl
	}
	return out, nil
}
