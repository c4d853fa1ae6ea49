package features

import (
	"fmt"
	"math/rand"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

// Columns attached by AssignUserIDs.
const (
	IndexColumn  = "index"
	UserIDColumn = "user_id"
)

// AssignUserIDs returns t with a 0-based row index column and a synthetic
// user id in [1, numUsers] drawn independently for every row.
//
// The source data has no real account identity; these ids exist only so
// that per-user aggregates can be computed.
func AssignUserIDs(t *dataset.Table, numUsers int, seed int64) (*dataset.Table, error) {
	if numUsers < 1 {
		return nil, fmt.Errorf("number of users must be positive, got %d", numUsers)
	}

	rng := rand.New(rand.NewSource(seed))
	index := make([]float64, t.Len())
	users := make([]float64, t.Len())
	for i := range users {
		index[i] = float64(i)
		users[i] = float64(rng.Intn(numUsers) + 1)
	}

	return t.WithColumns([]string{IndexColumn, UserIDColumn}, index, users)
}
