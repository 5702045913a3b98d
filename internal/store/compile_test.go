package store

import (
	"testing"

	"github.com/qolzam/docstore/internal/store/filter"
	"github.com/qolzam/docstore/internal/store/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type movie struct {
	ID       int      `bson:"_id"`
	Title    string   `bson:"title"`
	Year     int      `bson:"year"`
	Rating   float64  `bson:"rating,omitempty"`
	Points   []int    `bson:"points,omitempty"`
	Keywords []string `bson:"keywords,omitempty"`
	Category string   `bson:"category,omitempty"`
	Key      []byte   `bson:"key,omitempty"`
}

func compileText(t *testing.T, text string, s *schema.Schema) bson.D {
	t.Helper()
	expr, err := filter.Parse(text)
	require.NoError(t, err)
	doc, err := Compile(expr, s)
	require.NoError(t, err)
	return doc
}

func TestCompile(t *testing.T) {
	s, err := schema.Of[movie]()
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  bson.D
	}{
		{"equality coerced", "year=1980", bson.D{{Key: "year", Value: int32(1980)}}},
		{"less", "year<1980", bson.D{{Key: "year", Value: bson.D{{Key: "$lt", Value: int32(1980)}}}}},
		{"less or equal", "year<=1980", bson.D{{Key: "year", Value: bson.D{{Key: "$lte", Value: int32(1980)}}}}},
		{"greater", "year>1980", bson.D{{Key: "year", Value: bson.D{{Key: "$gt", Value: int32(1980)}}}}},
		{"greater or equal", "rating>=4.5", bson.D{{Key: "rating", Value: bson.D{{Key: "$gte", Value: 4.5}}}}},
		{"string field", "title=1980", bson.D{{Key: "title", Value: "1980"}}},
		{"array element", "points=2", bson.D{{Key: "points", Value: int32(2)}}},
		{"exists", "title=*", bson.D{{Key: "title", Value: bson.D{{Key: "$exists", Value: true}}}}},
		{"wildcard", "title=M*", bson.D{{Key: "title", Value: bson.D{{Key: "$regex", Value: "^M.*"}}}}},
		{"wildcard quotes segments", "title=a.b*c", bson.D{{Key: "title", Value: bson.D{{Key: "$regex", Value: `^a\.b.*c`}}}}},
		{"case insensitive", "title~=^star", bson.D{{Key: "title", Value: bson.D{{Key: "$regex", Value: "^star"}, {Key: "$options", Value: "i"}}}}},
		{"empty sequence", "points=[]", bson.D{{Key: "points", Value: bson.A{}}}},
		{"binary", "key=[h0102]", bson.D{{Key: "key", Value: []byte{1, 2}}}},
		{"null", "category=null", bson.D{{Key: "category", Value: nil}}},
		{"unknown field keeps text", "director=Lynch", bson.D{{Key: "director", Value: "Lynch"}}},
		{"failed coercion keeps text", "year=soon", bson.D{{Key: "year", Value: "soon"}}},
		{"and", "(&(year>1980)(title=Alien))", bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "year", Value: bson.D{{Key: "$gt", Value: int32(1980)}}}},
			bson.D{{Key: "title", Value: "Alien"}},
		}}}},
		{"or", "(|(year=1979)(year=1986))", bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "year", Value: int32(1979)}},
			bson.D{{Key: "year", Value: int32(1986)}},
		}}}},
		{"not", "(!(title=Alien))", bson.D{{Key: "$nor", Value: bson.A{
			bson.D{{Key: "title", Value: "Alien"}},
		}}}},
		{"empty and", "(&)", bson.D{}},
		{"empty or", "(|)", bson.D{{Key: "$nor", Value: bson.A{bson.D{}}}}},
		{"empty not", "(!)", bson.D{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compileText(t, tt.input, s))
		})
	}
}

func TestCompileWithoutSchema(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "year", Value: "1980"}}, compileText(t, "year=1980", nil))
	assert.Equal(t, bson.D{{Key: "done", Value: true}}, compileText(t, "done=true", nil))
	assert.Equal(t, bson.D{{Key: "key", Value: []byte{0xff}}}, compileText(t, "key=[hff]", nil))
}
