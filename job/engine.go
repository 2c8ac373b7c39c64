// Package job runs the join job: two data assets are read, joined on a column
// and the result is written to a path relative to a connection. The data
// processing itself is done by an Engine.
package job

import (
	"context"
)

// SaveMode says what happens when data already exists at the target
type SaveMode string

const (
	SaveModeOverwrite     SaveMode = "overwrite"
	SaveModeAppend        SaveMode = "append"
	SaveModeErrorIfExists SaveMode = "errorifexists"
	SaveModeIgnore        SaveMode = "ignore"
)

// Dataset is data held by an Engine
type Dataset interface {
	// Join returns the inner join of this dataset with other on the named
	// column
	Join(ctx context.Context, other Dataset, column string) (Dataset, error)
}

// Engine loads and saves datasets using a data source connector selected by
// format and configured by options
type Engine interface {
	Read(ctx context.Context, format string, options map[string]string) (Dataset, error)
	Write(ctx context.Context, dataset Dataset, format string, options map[string]string, mode SaveMode) error
}
