// Command filterlint checks constant filter text passed to Find and Where.
package main

import (
	"github.com/qolzam/docstore/internal/filterlint"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(filterlint.Analyzer)
}
