package cruxmod_test

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/crux-lang/cruxmod"
	"github.com/crux-lang/cruxmod/decl"
)

// Example serializes a small module and reads a declaration back.
func Example() {
	ctx := context.Background()

	point := &decl.StructDecl{Name: "Point"}
	point.Members = []decl.Decl{
		&decl.VarDecl{Name: "x", Context: point},
		&decl.VarDecl{Name: "y", Context: point},
	}
	m := &decl.Module{
		Name:  "geometry",
		Decls: []decl.Decl{point},
	}

	var buf bytes.Buffer
	if _, err := cruxmod.Write(ctx, &buf, m, cruxmod.WithProducer("cruxc 1.0")); err != nil {
		log.Fatal(err)
	}

	r, err := cruxmod.Open(buf.Bytes())
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	entries, err := r.LookupValue("Point")
	if err != nil {
		log.Fatal(err)
	}
	d, err := r.Decl(ctx, entries[0].Decl)
	if err != nil {
		log.Fatal(err)
	}

	s := d.(*decl.StructDecl)
	fmt.Println(r.Name(), s.Name, len(s.Members))
	// Output: geometry Point 2
}
