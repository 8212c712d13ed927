// Package repository stores backtest results in PostgreSQL or in memory.
package repository

import (
	"fmt"

	"github.com/yourusername/krx-quant/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	BacktestResult BacktestResultRepository
}

// NewRepositories creates and returns all PostgreSQL repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		BacktestResult: NewPostgresBacktestResultRepository(db),
	}, nil
}

// NewMemoryRepositories creates in-process repositories for runs without a database
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		BacktestResult: NewMemoryBacktestResultRepository(),
	}
}
