package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagedMovies(t *testing.T, n, pageSize int) *Store[movie] {
	t.Helper()
	s := movies(t, WithPageSizes(0, pageSize))
	// insert out of order so visiting has to sort
	for i := n; i >= 1; i-- {
		_, err := s.Insert(context.Background(), &movie{ID: i, Year: 1900 + i})
		require.NoError(t, err)
	}
	return s
}

func TestVisitAll(t *testing.T) {
	for _, tc := range []struct {
		name     string
		n, pages int
	}{
		{"partial last page", 25, 7},
		{"exact pages", 21, 7},
		{"single page", 3, 7},
		{"empty", 0, 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := pagedMovies(t, tc.n, tc.pages)

			var seen []int
			completed, err := s.All().Visit(context.Background(), func(m *movie) (bool, error) {
				seen = append(seen, m.ID)
				return true, nil
			})
			require.NoError(t, err)
			assert.True(t, completed)
			require.Len(t, seen, tc.n)
			for i, id := range seen {
				assert.Equal(t, i+1, id)
			}
		})
	}
}

func TestVisitStops(t *testing.T) {
	s := pagedMovies(t, 25, 7)

	calls := 0
	completed, err := s.All().Visit(context.Background(), func(m *movie) (bool, error) {
		calls++
		return calls < 10, nil
	})
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, 10, calls)
}

func TestVisitWithPredicate(t *testing.T) {
	s := pagedMovies(t, 30, 4)

	c := s.Find("year>1910").Select("year").Limit(3).Descending("year")
	before, err := c.Build()
	require.NoError(t, err)

	var seen []int
	completed, err := c.Visit(context.Background(), func(m *movie) (bool, error) {
		assert.Empty(t, m.Title)
		seen = append(seen, m.ID)
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Len(t, seen, 20)
	assert.Equal(t, 11, seen[0])
	assert.Equal(t, 30, seen[len(seen)-1])

	after, err := c.Build()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestVisitCallbackError(t *testing.T) {
	s := pagedMovies(t, 5, 2)
	boom := errors.New("boom")

	completed, err := s.All().Visit(context.Background(), func(m *movie) (bool, error) {
		if m.ID == 3 {
			return false, boom
		}
		return true, nil
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, completed)
}
