package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      ErrorClass
		retryable bool
	}{
		{"nil", nil, ErrorClassPermanent, false},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization, true},
		{"deadlock", &pq.Error{Code: "40P01"}, ErrorClassDeadlock, true},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient, true},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent, false},
		{"foreign key violation", &pq.Error{Code: "23503"}, ErrorClassPermanent, false},
		{"wrapped deadlock", fmt.Errorf("allocate inventory: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock, true},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent, false},
		{"cancelled", fmt.Errorf("create order: %w", context.Canceled), ErrorClassPermanent, false},
		{"deadline", context.DeadlineExceeded, ErrorClassPermanent, false},
		{"other", errors.New("boom"), ErrorClassPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
