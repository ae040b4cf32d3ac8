package repository

import (
	"context"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (interface{}, error)
	Save(ctx context.Context, docID string, data interface{}) error
	Update(ctx context.Context, id string, data interface{}) error
	Delete(ctx context.Context, id string) error
	GetDBName() string
	GetClient() interface{}
}

// DBSelector hands out the repository backing a named database.
type DBSelector interface {
	ChooseDB(dbName string) (Repository, error)
}
