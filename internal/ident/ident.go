package ident

import (
	"strconv"

	"github.com/google/uuid"
)

// Generator — источник идентификаторов для строк БД.
// Внедряется в сторы, чтобы тесты могли подсунуть детерминированные id.
type Generator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// NewUUID возвращает генератор на базе случайных UUID.
func NewUUID() Generator { return uuidGenerator{} }

// Sequence — детерминированный генератор для тестов: prefix-1, prefix-2, ...
type Sequence struct {
	Prefix string
	n      int
}

func (s *Sequence) NewID() string {
	s.n++
	return s.Prefix + "-" + strconv.Itoa(s.n)
}
