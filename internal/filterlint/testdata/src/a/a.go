package a

type cursor struct{}

func (c *cursor) Where(text string, args ...interface{}) *cursor { return c }

type store struct{}

func (s *store) Find(text string, args ...interface{}) *cursor { return &cursor{} }

const byYear = "(year<1980"

func queries(s *store, dynamic string) {
	s.Find("year<1980")
	s.Find("(&(name=M*)(year>=1980))").Where("(|(a=1)(b=2))")
	s.Find("(year<1980")                 // want "malformed filter passed to Find"
	s.Find("year<1980").Where("(title=") // want "malformed filter passed to Where"
	s.Find(byYear)                       // want "malformed filter passed to Find"
	s.Find("(year<%d", 1980)
	s.Find(dynamic)
	s.Find("")
	s.Find("year").Where("  ") // want "malformed filter passed to Find"
}
