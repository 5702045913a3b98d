package store

import (
	"errors"
	"testing"

	"github.com/qolzam/docstore/internal/store/filter"
	"github.com/qolzam/docstore/internal/store/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func movies(t *testing.T, opts ...Option) *Store[movie] {
	return newStore[movie](t, newTestDB(t, opts...), "movies")
}

func build(t *testing.T, c *Cursor[movie]) *Request {
	t.Helper()
	req, err := c.Build()
	require.NoError(t, err)
	return req
}

func TestWhereIsIdempotent(t *testing.T) {
	s := movies(t)
	a := build(t, s.Find("(&(year<1980)(title=M*))"))
	b := build(t, s.Find("(&(year<1980)(title=M*))"))
	assert.Equal(t, a, b)
}

func TestWhereTemplate(t *testing.T) {
	s := movies(t)
	assert.Equal(t, build(t, s.Find("year<1980")).Query, build(t, s.Find("year<%s", 1980)).Query)
	assert.Equal(t,
		bson.D{{Key: "year", Value: bson.D{{Key: "$lt", Value: int32(1980)}}}},
		build(t, s.Find("year<%d", 1980)).Query)
}

func TestWhereConjoins(t *testing.T) {
	s := movies(t)
	req := build(t, s.Find("year<1980").Where("title=Alien"))
	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "year", Value: bson.D{{Key: "$lt", Value: int32(1980)}}}},
		bson.D{{Key: "title", Value: "Alien"}},
	}}}
	assert.Equal(t, want, req.Query)
	assert.False(t, req.Unconstrained)
}

func TestWhereBlankAddsNothing(t *testing.T) {
	s := movies(t)
	req := build(t, s.Find("  "))
	assert.Equal(t, bson.D{}, req.Query)
	assert.True(t, req.Unconstrained)
}

func TestWhereKeepsFirstError(t *testing.T) {
	s := movies(t)
	c := s.Find("(year<1980").Where("title=Alien").Select("nope")
	require.Error(t, c.Err())
	assert.True(t, errors.Is(c.Err(), filter.ErrSyntax))

	_, err := c.Build()
	assert.True(t, errors.Is(err, filter.ErrSyntax))
}

func TestOrByIdentity(t *testing.T) {
	s := movies(t)
	req := build(t, s.FindByExample(&movie{ID: 1}).Or(&movie{ID: 2}).Or(&movie{ID: 3}))
	want := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "_id", Value: 1}},
			bson.D{{Key: "_id", Value: 2}},
		}}},
		bson.D{{Key: "_id", Value: 3}},
	}}}
	assert.Equal(t, want, req.Query)
}

func TestComparisonsOverwrite(t *testing.T) {
	s := movies(t)
	req := build(t, s.All().Eq("year", "1980").Eq("title", "Alien").Gt("year", 1990))
	want := bson.D{
		{Key: "year", Value: bson.D{{Key: "$gt", Value: int32(1990)}}},
		{Key: "title", Value: "Alien"},
	}
	assert.Equal(t, want, req.Query)

	req = build(t, s.All().Gte("rating", 4).Lt("year", 2000).Lte("points", "3"))
	want = bson.D{
		{Key: "rating", Value: bson.D{{Key: "$gte", Value: 4.0}}},
		{Key: "year", Value: bson.D{{Key: "$lt", Value: int32(2000)}}},
		{Key: "points", Value: bson.D{{Key: "$lte", Value: int32(3)}}},
	}
	assert.Equal(t, want, req.Query)
}

func TestIn(t *testing.T) {
	s := movies(t)
	req := build(t, s.All().In("year", 1979, "1986", int64(1990)))
	want := bson.D{{Key: "year", Value: bson.D{{Key: "$in", Value: bson.A{int32(1979), int32(1986), int32(1990)}}}}}
	assert.Equal(t, want, req.Query)

	_, err := s.All().In("director", "Scott").Build()
	assert.True(t, errors.Is(err, schema.ErrSchema))
}

func TestProjection(t *testing.T) {
	s := movies(t)
	req := build(t, s.Select("title", "year").Slice("points", -2))
	want := bson.D{
		{Key: "title", Value: 1},
		{Key: "year", Value: 1},
		{Key: "points", Value: bson.D{{Key: "$slice", Value: -2}}},
	}
	assert.Equal(t, want, req.Projection)

	_, err := s.Select("director").Build()
	assert.True(t, errors.Is(err, schema.ErrUnknownField))
	_, err = s.All().Slice("director", 1).Build()
	assert.True(t, errors.Is(err, schema.ErrUnknownField))
}

func TestPageWindow(t *testing.T) {
	s := movies(t)
	req := build(t, s.All())
	assert.Equal(t, int64(defaultPageSize), req.Limit)
	assert.Zero(t, req.Skip)

	req = build(t, s.All().Skip(20).Limit(10))
	assert.Equal(t, int64(10), req.Limit)
	assert.Equal(t, int64(20), req.Skip)

	req = build(t, s.All().Limit(10).Limit(0))
	assert.Equal(t, int64(defaultPageSize), req.Limit)

	_, err := s.All().Limit(-1).Build()
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = s.All().Skip(-1).Build()
	assert.ErrorIs(t, err, ErrPrecondition)

	custom := newStore[movie](t, newTestDB(t, WithPageSizes(25, 0)), "movies")
	assert.Equal(t, int64(25), build(t, custom.All()).Limit)
}

func TestSortKeysAppend(t *testing.T) {
	s := movies(t)
	req := build(t, s.All().Descending("year").Ascending("title").Ascending("year"))
	assert.Equal(t, bson.D{{Key: "title", Value: 1}, {Key: "year", Value: 1}}, req.Sort)

	req = build(t, s.All().Ascending("rating").Descending("title").Descending("rating").Ascending("year"))
	want := bson.D{
		{Key: "title", Value: -1},
		{Key: "rating", Value: -1},
		{Key: "year", Value: 1},
	}
	assert.Equal(t, want, req.Sort)
}

func TestUpdateDocument(t *testing.T) {
	s := movies(t)
	req := build(t, s.All().
		Set("title", "Alien").
		Inc("year", 1).
		Append("points", 1, 2).
		Remove("keywords", "draft").
		Pull("points", "7").
		Unset("category"))

	want := bson.D{
		{Key: "$set", Value: bson.D{{Key: "title", Value: "Alien"}}},
		{Key: "$inc", Value: bson.D{{Key: "year", Value: int32(1)}}},
		{Key: "$push", Value: bson.D{{Key: "points", Value: bson.D{{Key: "$each", Value: bson.A{int32(1), int32(2)}}}}}},
		{Key: "$pullAll", Value: bson.D{{Key: "keywords", Value: bson.A{"draft"}}}},
		{Key: "$pull", Value: bson.D{{Key: "points", Value: int32(7)}}},
		{Key: "$unset", Value: bson.D{{Key: "category", Value: ""}}},
	}
	assert.Equal(t, want, req.Update)
}

func TestSetLastWriteWins(t *testing.T) {
	s := movies(t)
	req := build(t, s.All().Set("title", "Alien").Set("year", 1979).Set("title", "Aliens"))
	want := bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: "Aliens"},
		{Key: "year", Value: int32(1979)},
	}}}
	assert.Equal(t, want, req.Update)
}

func TestSetFromExample(t *testing.T) {
	s := movies(t)
	req := build(t, s.FindByExample(&movie{ID: 1, Title: "Alien"}).Or(&movie{ID: 2, Title: "Aliens"}).Set("title"))
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "title", Value: "Aliens"}}}}, req.Update)

	_, err := s.All().Set("title").Build()
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = s.All().Set("title", "a", "b").Build()
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = s.All().Set("director", "Scott").Build()
	assert.True(t, errors.Is(err, schema.ErrSchema))
}

func TestTextAndWord(t *testing.T) {
	s := movies(t)
	req := build(t, s.All().Text("Star Wars: A New Hope"))
	want := bson.D{{Key: "$push", Value: bson.D{{Key: "keywords", Value: bson.D{
		{Key: "$each", Value: bson.A{"a", "hope", "new", "star", "wars"}},
	}}}}}
	assert.Equal(t, want, req.Update)

	req = build(t, s.All().Word("Émile"))
	want = bson.D{{Key: "$push", Value: bson.D{{Key: "keywords", Value: bson.D{
		{Key: "$each", Value: bson.A{"emile"}},
	}}}}}
	assert.Equal(t, want, req.Update)
}

func TestQueryTemplates(t *testing.T) {
	s := movies(t)
	templates := map[string]string{"tag": "category=%s", "after": "year>%s"}

	got := build(t, s.All().Query("tag:foo -bar", templates)).Query
	want := build(t, s.Find("(&(category=foo)(!(keywords=bar)))")).Query
	assert.Equal(t, want, got)

	got = build(t, s.All().Query("Alien !tag:horror after:1970 space -Sequel", templates)).Query
	want = build(t, s.Find("(&(!(category=horror))(year>1970)(keywords=alien)(keywords=space)(!(keywords=sequel)))")).Query
	assert.Equal(t, want, got)

	got = build(t, s.All().Query("genre:scifi", templates)).Query
	want = build(t, s.Find("(&(keywords=genre)(keywords=scifi))")).Query
	assert.Equal(t, want, got)

	req := build(t, s.All().Query("   ", templates))
	assert.True(t, req.Unconstrained)
}

func TestBuildIsFrozen(t *testing.T) {
	s := movies(t)
	c := s.Find("year<1980").Eq("title", "Alien").Select("title").Ascending("year").Set("year", 1979)
	req := build(t, c)
	snapshot := build(t, c)

	c.Eq("title", "Aliens").Select("year").Descending("year").Set("year", 1986)
	assert.Equal(t, snapshot, req)
	assert.NotEqual(t, req, build(t, c))
}
