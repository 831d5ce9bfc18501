package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrRecordNotFound is returned when a query doesn't find any matching records.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert or update violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrForeignKey is returned when an operation violates a foreign key constraint.
	ErrForeignKey = errors.New("foreign key violation")

	// ErrInvalidData is returned for rejected input, including malformed
	// values the server refuses to cast.
	ErrInvalidData = errors.New("invalid data")
)

// Postgres SQLSTATE codes that TranslateError classifies.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
	codeInvalidDatetime     = "22007"
	codeInvalidJSONText     = "22032"
)

// TranslateError maps gorm and driver errors onto the sentinels above. Errors
// it does not recognise are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKey
	case errors.Is(err, gorm.ErrInvalidData):
		return ErrInvalidData
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrDuplicateKey
		case codeForeignKeyViolation:
			return ErrForeignKey
		case codeInvalidText, codeInvalidDatetime, codeInvalidJSONText:
			return ErrInvalidData
		}
	}
	return err
}
