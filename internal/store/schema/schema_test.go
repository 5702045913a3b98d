package schema

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type address struct {
	City string `bson:"city"`
	Zip  int    `bson:"zip"`
}

type audit struct {
	Created time.Time `bson:"created"`
}

type user struct {
	ID       []byte            `bson:"_id"`
	Email    string            `bson:"email"`
	Nick     string            `bson:"nick"`
	Age      int               `bson:"age"`
	Address  address           `bson:"address"`
	Visits   []address         `bson:"visits"`
	Points   []int             `bson:"points"`
	Labels   map[string]string `bson:"labels"`
	Ignored  string            `bson:"-"`
	Untagged bool
	Audit    audit `bson:",inline"`
	secret   string
}

type open struct {
	ID   string                 `bson:"_id"`
	Rest map[string]interface{} `bson:",inline"`
}

func TestNew(t *testing.T) {
	s, err := Of[user]()
	require.NoError(t, err)

	assert.Equal(t, "schema.user", s.Name())
	assert.Equal(t, "_id", s.ID.Name)

	var names []string
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"_id", "email", "nick", "age", "address", "visits", "points", "labels", "untagged", "created"}, names)

	_, ok := s.Field("Ignored")
	assert.False(t, ok)
	_, ok = s.Field("secret")
	assert.False(t, ok)
}

func TestNewErrors(t *testing.T) {
	_, err := New(reflect.TypeOf(42))
	assert.True(t, errors.Is(err, ErrSchema))
	assert.True(t, errors.Is(err, ErrNotStruct))

	_, err = New(reflect.TypeOf(address{}))
	assert.True(t, errors.Is(err, ErrNoIdentityField))

	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "_id", fieldErr.Field)
	assert.Contains(t, err.Error(), "schema.address._id")
}

func TestLookup(t *testing.T) {
	s, err := Of[user]()
	require.NoError(t, err)

	tests := []struct {
		path string
		want reflect.Type
	}{
		{"age", reflect.TypeOf(0)},
		{"address.city", reflect.TypeOf("")},
		{"address.zip", reflect.TypeOf(0)},
		{"visits.zip", reflect.TypeOf(0)},
		{"visits.0", reflect.TypeOf(address{})},
		{"visits.0.city", reflect.TypeOf("")},
		{"points", reflect.TypeOf([]int{})},
		{"points.1", reflect.TypeOf(0)},
		{"labels.color", reflect.TypeOf("")},
		{"created", reflect.TypeOf(time.Time{})},
		{"address.street", nil},
		{"age.x", nil},
		{"points.x", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Lookup(tt.path))
		})
	}

	var nilSchema *Schema
	assert.Nil(t, nilSchema.Lookup("age"))
}

func TestValidate(t *testing.T) {
	s, err := Of[user]()
	require.NoError(t, err)

	assert.NoError(t, s.Validate("age"))
	assert.NoError(t, s.Validate("address.anything"))

	err = s.Validate("nope.x")
	assert.True(t, errors.Is(err, ErrUnknownField))
	assert.True(t, errors.Is(err, ErrSchema))

	o, err := Of[open]()
	require.NoError(t, err)
	assert.NoError(t, o.Validate("whatever"))
	assert.Nil(t, o.Lookup("whatever"))
}

func TestFieldAccess(t *testing.T) {
	s, err := Of[user]()
	require.NoError(t, err)
	u := &user{Age: 3}
	v := reflect.ValueOf(u)

	age, _ := s.Field("age")
	assert.Equal(t, 3, age.Get(v))
	assert.False(t, age.IsZero(v))

	require.NoError(t, age.Set(v, int32(7)))
	assert.Equal(t, 7, u.Age)
	require.NoError(t, age.Set(v, nil))
	assert.Equal(t, 0, u.Age)
	assert.True(t, age.IsZero(v))

	assert.Error(t, age.Set(v, "seven"))
	assert.Error(t, age.Set(reflect.ValueOf(user{}), 1))

	created, _ := s.Field("created")
	now := time.Now()
	require.NoError(t, created.Set(v, now))
	assert.Equal(t, now, u.Audit.Created)
}

func TestIdentity(t *testing.T) {
	s, err := Of[user]()
	require.NoError(t, err)

	_, err = s.Identity(&user{})
	assert.True(t, errors.Is(err, ErrMissingIdentity))
	_, err = s.Identity((*user)(nil))
	assert.True(t, errors.Is(err, ErrMissingIdentity))

	id, err := s.Identity(&user{ID: []byte{1}, Email: "a@b"})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: []byte{1}}}, id)

	require.NoError(t, s.MarkUnique("nick", "email", "nick"))
	assert.Len(t, s.Unique(), 2)

	id, err = s.Identity(&user{Email: "a@b", Nick: "al"})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "nick", Value: "al"}}, id)

	id, err = s.Identity(user{Email: "a@b"})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "email", Value: "a@b"}}, id)

	assert.True(t, errors.Is(s.MarkUnique("nope"), ErrUnknownField))

	_, err = s.Identity(&address{})
	assert.Error(t, err)
}
