package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/store"
)

func TestTranslate(t *testing.T) {
	req := require.New(t)

	req.NoError(translate(nil))
	req.ErrorIs(translate(pgx.ErrNoRows), store.ErrNotFound)
	req.ErrorIs(translate(fmt.Errorf("scan: %w", pgx.ErrNoRows)), store.ErrNotFound)

	unique := &pgconn.PgError{Code: "23505"}
	req.True(IsUniqueViolation(unique))
	req.ErrorIs(translate(unique), store.ErrAlreadyExists)

	other := &pgconn.PgError{Code: "40001"}
	req.False(IsUniqueViolation(other))
	req.Equal(other, translate(other))
}
