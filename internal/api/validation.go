package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/officina-hr/jobengine/internal/domain"
)

// Trigger endpoints use dashed aliases; everything else takes the
// canonical job name.
var triggerAliases = map[string]string{
	"monthly-accrual":        domain.JobMonthlyAccrual,
	"shift-generation":       domain.JobShiftGeneration,
	"deadline-notifications": domain.JobDeadlineNotification,
}

func jobNameFromAlias(alias string) (string, bool) {
	name, ok := triggerAliases[alias]
	return name, ok
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return fmt.Sprintf("limit exceeds maximum of %d", e.max)
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}
