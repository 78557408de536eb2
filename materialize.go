package cruxmod

import (
	"context"
	"errors"
	"math"

	"github.com/crux-lang/cruxmod/container"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
)

// This file is the reader half of the graph engine: it turns one record and
// its trailers back into the node emitDecl/emitType wrote. Every decode path
// here must mirror its emit path field for field; the wire carries no shapes
// to check against.

// graphRecord reads the next record of a trailer chain. Anything other than
// a schema-shaped record is corruption: the declarations block has no skip
// policy, and a block boundary inside a trailer chain means the chain was
// truncated.
func (r *Reader) graphRecord(cur *container.Reader) (container.Record, error) {
	ent, err := cur.Next()
	if err != nil {
		return container.Record{}, err
	}
	switch ent.Kind {
	case container.EntryRecord:
		rec, err := cur.ReadRecord()
		if err != nil {
			var unknown *container.UnknownRecordError
			if errors.As(err, &unknown) {
				return container.Record{}, corruptErr(cur.BitPos(), err, "unknown record in declarations block")
			}
			return container.Record{}, err
		}
		r.stats.RecordsDecoded++
		return rec, nil
	case container.EntryRawRecord:
		return container.Record{}, corruptf(cur.BitPos(), "raw record tag %d in declarations block", ent.Tag)
	case container.EntryEnterBlock:
		return container.Record{}, corruptf(ent.Start, "nested block inside declarations block")
	}
	return container.Record{}, corruptf(cur.BitPos(), "record chain ends at block boundary")
}

// expectRecord reads the next record and requires a specific trailer tag.
func (r *Reader) expectRecord(cur *container.Reader, want format.RecordKind) (container.Record, error) {
	rec, err := r.graphRecord(cur)
	if err != nil {
		return container.Record{}, err
	}
	if rec.Tag != want {
		return container.Record{}, corruptf(cur.BitPos(), "expected %d record in trailer chain, found %d", want, rec.Tag)
	}
	return rec, nil
}

// declAs materializes a declaration reference and narrows it to the concrete
// kind the field requires. A null reference narrows to a nil pointer.
func declAs[N any, P interface {
	*N
	decl.Decl
}](ctx context.Context, r *Reader, v uint64, what string) (P, error) {
	var zero P
	d, err := r.Decl(ctx, format.DeclID(v))
	if err != nil || d == nil {
		return zero, err
	}
	p, ok := d.(P)
	if !ok {
		return zero, corruptf(0, "%s reference %d is a %s", what, v, kindName(d.Kind()))
	}
	return p, nil
}

func kindName(k format.RecordKind) string {
	if l, ok := format.LayoutFor(format.BlockDeclsAndTypes, k); ok {
		return l.Name
	}
	return "unknown record"
}

func (r *Reader) protocolRefs(ctx context.Context, ids []uint64, what string) ([]*decl.ProtocolDecl, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	protos := make([]*decl.ProtocolDecl, 0, len(ids))
	for _, v := range ids {
		p, err := declAs[decl.ProtocolDecl](ctx, r, v, what)
		if err != nil {
			return nil, err
		}
		protos = append(protos, p)
	}
	return protos, nil
}

// materializeDecl decodes the declaration record at off. slot.node is set to
// the empty node before any field is filled, so references cycling back to
// this ID land on the node under construction.
func (r *Reader) materializeDecl(ctx context.Context, slot *declSlot, off uint64) (decl.Decl, error) {
	if err := r.push(off); err != nil {
		return nil, err
	}
	defer r.pop()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur, err := container.NewCursorAt(r.bitstream(), declsBlock, off)
	if err != nil {
		return nil, err
	}
	rec, err := r.graphRecord(cur)
	if err != nil {
		return nil, err
	}

	if rec.Tag == format.CrossReference {
		d, err := r.materializeXRef(ctx, off, rec)
		if err != nil {
			return nil, err
		}
		slot.node = d
		return d, nil
	}
	if !format.IsDeclRecord(rec.Tag) {
		return nil, corruptf(off, "declaration offset points at record tag %d", rec.Tag)
	}

	switch rec.Tag {
	case format.DeclTypeAlias:
		d := &decl.TypeAliasDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		if d.Underlying, err = r.Type(ctx, format.TypeID(rec.Scalars[2])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[3] != 0
		if d.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[4]); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclGenericParam:
		d := &decl.GenericParamDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		if rec.Scalars[2] > math.MaxUint32 || rec.Scalars[3] > math.MaxUint32 {
			return nil, corruptf(off, "generic parameter depth %d index %d out of range", rec.Scalars[2], rec.Scalars[3])
		}
		d.Depth = uint32(rec.Scalars[2])
		d.Index = uint32(rec.Scalars[3])
		if d.Superclass, err = r.Type(ctx, format.TypeID(rec.Scalars[4])); err != nil {
			return nil, err
		}
		if d.Archetype, err = r.Type(ctx, format.TypeID(rec.Scalars[5])); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclAssociatedType:
		d := &decl.AssociatedTypeDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		if d.Underlying, err = r.Type(ctx, format.TypeID(rec.Scalars[2])); err != nil {
			return nil, err
		}
		if d.Archetype, err = r.Type(ctx, format.TypeID(rec.Scalars[3])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[4] != 0
		if d.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[5]); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclStruct:
		d := &decl.StructDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		if rec.Scalars[3] != 0 {
			if d.GenericParams, err = r.readGenericParams(ctx, cur); err != nil {
				return nil, err
			}
		}
		if d.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[4]); err != nil {
			return nil, err
		}
		if d.Members, err = r.readDeclContext(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclConstructor:
		d := &decl.ConstructorDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[1] != 0
		d.Foreign = rec.Scalars[2] != 0
		if d.Signature, err = r.Type(ctx, format.TypeID(rec.Scalars[3])); err != nil {
			return nil, err
		}
		if d.Self, err = declAs[decl.VarDecl](ctx, r, rec.Scalars[4], "constructor self"); err != nil {
			return nil, err
		}
		if rec.Scalars[5] != 0 {
			if d.GenericParams, err = r.readGenericParams(ctx, cur); err != nil {
				return nil, err
			}
		}
		if d.Params, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclVar:
		d := &decl.VarDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		d.Foreign = rec.Scalars[3] != 0
		if d.Type, err = r.Type(ctx, format.TypeID(rec.Scalars[4])); err != nil {
			return nil, err
		}
		if d.Getter, err = declAs[decl.FuncDecl](ctx, r, rec.Scalars[5], "variable getter"); err != nil {
			return nil, err
		}
		if d.Setter, err = declAs[decl.FuncDecl](ctx, r, rec.Scalars[6], "variable setter"); err != nil {
			return nil, err
		}
		if d.Overridden, err = declAs[decl.VarDecl](ctx, r, rec.Scalars[7], "overridden variable"); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclFunc:
		d := &decl.FuncDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		d.Static = rec.Scalars[3] != 0
		d.Conversion = rec.Scalars[4] != 0
		d.Foreign = rec.Scalars[5] != 0
		hasGenerics := rec.Scalars[6] != 0
		numParams := rec.Scalars[7]
		if d.Signature, err = r.Type(ctx, format.TypeID(rec.Scalars[8])); err != nil {
			return nil, err
		}
		if d.Operator, err = r.Decl(ctx, format.DeclID(rec.Scalars[9])); err != nil {
			return nil, err
		}
		if d.Overridden, err = declAs[decl.FuncDecl](ctx, r, rec.Scalars[10], "overridden function"); err != nil {
			return nil, err
		}
		d.LinkName = string(rec.Blob)
		if hasGenerics {
			if d.GenericParams, err = r.readGenericParams(ctx, cur); err != nil {
				return nil, err
			}
		}
		for range numParams {
			p, err := r.readPattern(ctx, cur)
			if err != nil {
				return nil, err
			}
			d.Params = append(d.Params, p)
		}
		return d, nil

	case format.DeclPatternBinding:
		d := &decl.PatternBindingDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[1] != 0
		if d.Pattern, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclProtocol:
		d := &decl.ProtocolDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		d.ClassProtocol = rec.Scalars[3] != 0
		if d.Inherited, err = r.protocolRefs(ctx, rec.Array, "inherited protocol"); err != nil {
			return nil, err
		}
		if d.Members, err = r.readDeclContext(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclPrefixOperator:
		d := &decl.PrefixOperatorDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclPostfixOperator:
		d := &decl.PostfixOperatorDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclInfixOperator:
		d := &decl.InfixOperatorDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		assoc := format.Associativity(rec.Scalars[2])
		if !assoc.Valid() {
			return nil, corruptf(off, "invalid operator associativity %d", rec.Scalars[2])
		}
		d.Associativity = assoc
		d.Precedence = uint8(rec.Scalars[3])
		return d, nil

	case format.DeclClass:
		d := &decl.ClassDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		d.Foreign = rec.Scalars[3] != 0
		hasGenerics := rec.Scalars[4] != 0
		if d.Superclass, err = r.Type(ctx, format.TypeID(rec.Scalars[5])); err != nil {
			return nil, err
		}
		if hasGenerics {
			if d.GenericParams, err = r.readGenericParams(ctx, cur); err != nil {
				return nil, err
			}
		}
		if d.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[6]); err != nil {
			return nil, err
		}
		if d.Members, err = r.readDeclContext(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclUnion:
		d := &decl.UnionDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		if rec.Scalars[3] != 0 {
			if d.GenericParams, err = r.readGenericParams(ctx, cur); err != nil {
				return nil, err
			}
		}
		if d.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[4]); err != nil {
			return nil, err
		}
		if d.Members, err = r.readDeclContext(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclUnionElement:
		d := &decl.UnionElementDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		if d.ArgumentType, err = r.Type(ctx, format.TypeID(rec.Scalars[2])); err != nil {
			return nil, err
		}
		if d.ResultType, err = r.Type(ctx, format.TypeID(rec.Scalars[3])); err != nil {
			return nil, err
		}
		if d.ConstructorType, err = r.Type(ctx, format.TypeID(rec.Scalars[4])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[5] != 0
		return d, nil

	case format.DeclSubscript:
		d := &decl.SubscriptDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[1] != 0
		d.Foreign = rec.Scalars[2] != 0
		if d.ElementType, err = r.Type(ctx, format.TypeID(rec.Scalars[3])); err != nil {
			return nil, err
		}
		if d.Getter, err = declAs[decl.FuncDecl](ctx, r, rec.Scalars[4], "subscript getter"); err != nil {
			return nil, err
		}
		if d.Setter, err = declAs[decl.FuncDecl](ctx, r, rec.Scalars[5], "subscript setter"); err != nil {
			return nil, err
		}
		if d.Overridden, err = declAs[decl.SubscriptDecl](ctx, r, rec.Scalars[6], "overridden subscript"); err != nil {
			return nil, err
		}
		if d.Indices, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclExtension:
		d := &decl.ExtensionDecl{}
		d.Owner = r.module
		slot.node = d
		if d.ExtendedType, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[2] != 0
		if d.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[3]); err != nil {
			return nil, err
		}
		if d.Members, err = r.readDeclContext(ctx, cur); err != nil {
			return nil, err
		}
		return d, nil

	case format.DeclDestructor:
		d := &decl.DestructorDecl{}
		d.Owner = r.module
		slot.node = d
		if d.Context, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		d.Implicit = rec.Scalars[1] != 0
		if d.Signature, err = r.Type(ctx, format.TypeID(rec.Scalars[2])); err != nil {
			return nil, err
		}
		if d.Self, err = declAs[decl.VarDecl](ctx, r, rec.Scalars[3], "destructor self"); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, corruptf(off, "unhandled declaration record tag %d", rec.Tag)
}

func (r *Reader) materializeType(ctx context.Context, slot *typeSlot, off uint64) (decl.Type, error) {
	if err := r.push(off); err != nil {
		return nil, err
	}
	defer r.pop()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur, err := container.NewCursorAt(r.bitstream(), declsBlock, off)
	if err != nil {
		return nil, err
	}
	rec, err := r.graphRecord(cur)
	if err != nil {
		return nil, err
	}
	if !format.IsTypeRecord(rec.Tag) {
		return nil, corruptf(off, "type offset points at record tag %d", rec.Tag)
	}

	switch rec.Tag {
	case format.TypeAlias:
		t := &decl.AliasType{}
		slot.node = t
		if t.Decl, err = declAs[decl.TypeAliasDecl](ctx, r, rec.Scalars[0], "alias type"); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeNominal:
		t := &decl.NominalType{}
		slot.node = t
		if t.Decl, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Parent, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeParen:
		t := &decl.ParenType{}
		slot.node = t
		if t.Inner, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeTuple:
		t := &decl.TupleType{}
		slot.node = t
		count := rec.Scalars[0]
		for range count {
			erec, err := r.expectRecord(cur, format.TypeTupleElem)
			if err != nil {
				return nil, err
			}
			var elem decl.TupleTypeElem
			if elem.Name, err = r.Identifier(format.IdentifierID(erec.Scalars[0])); err != nil {
				return nil, err
			}
			if elem.Type, err = r.Type(ctx, format.TypeID(erec.Scalars[1])); err != nil {
				return nil, err
			}
			da := format.DefaultArgumentKind(erec.Scalars[2])
			if !da.Valid() {
				return nil, corruptf(off, "invalid default argument kind %d", erec.Scalars[2])
			}
			elem.DefaultArg = da
			elem.Vararg = erec.Scalars[3] != 0
			t.Elems = append(t.Elems, elem)
		}
		return t, nil

	case format.TypeFunction:
		t := &decl.FunctionType{}
		slot.node = t
		if t.Input, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Result, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		conv := format.CallingConvention(rec.Scalars[2])
		if !conv.Valid() {
			return nil, corruptf(off, "invalid calling convention %d", rec.Scalars[2])
		}
		t.Convention = conv
		t.AutoClosure = rec.Scalars[3] != 0
		t.Thin = rec.Scalars[4] != 0
		t.NoReturn = rec.Scalars[5] != 0
		return t, nil

	case format.TypeMetatype:
		t := &decl.MetatypeType{}
		slot.node = t
		if t.Instance, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeLValue:
		t := &decl.LValueType{}
		slot.node = t
		if t.Object, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		t.Implicit = rec.Scalars[1] != 0
		t.NonSettable = rec.Scalars[2] != 0
		return t, nil

	case format.TypeArchetype:
		t := &decl.ArchetypeType{}
		slot.node = t
		if t.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		primary := rec.Scalars[1] != 0
		if primary {
			if rec.Scalars[2] > math.MaxUint32 {
				return nil, corruptf(off, "archetype index %d out of range", rec.Scalars[2])
			}
			t.Index = uint32(rec.Scalars[2])
		} else {
			if rec.Scalars[2] > format.MaxID {
				return nil, corruptf(off, "archetype parent type %d out of range", rec.Scalars[2])
			}
			if t.Parent, err = r.Type(ctx, format.TypeID(rec.Scalars[2])); err != nil {
				return nil, err
			}
			if t.Parent == nil {
				return nil, corruptf(off, "nested archetype has no parent")
			}
		}
		if t.AssocOrProto, err = r.Decl(ctx, format.DeclID(rec.Scalars[3])); err != nil {
			return nil, err
		}
		if t.Superclass, err = r.Type(ctx, format.TypeID(rec.Scalars[4])); err != nil {
			return nil, err
		}
		numNested := rec.Scalars[5]
		if t.Conformances, err = r.protocolRefs(ctx, rec.Array, "archetype conformance"); err != nil {
			return nil, err
		}
		if numNested > 0 {
			names, err := r.expectRecord(cur, format.TypeArchetypeNames)
			if err != nil {
				return nil, err
			}
			nested, err := r.expectRecord(cur, format.TypeArchetypeNested)
			if err != nil {
				return nil, err
			}
			if uint64(len(names.Array)) != numNested || uint64(len(nested.Array)) != numNested {
				return nil, corruptf(off, "archetype declares %d nested types, trailers carry %d names and %d types",
					numNested, len(names.Array), len(nested.Array))
			}
			for i := range names.Array {
				var n decl.ArchetypeNested
				if n.Name, err = r.Identifier(format.IdentifierID(names.Array[i])); err != nil {
					return nil, err
				}
				if n.Type, err = r.Type(ctx, format.TypeID(nested.Array[i])); err != nil {
					return nil, err
				}
				t.Nested = append(t.Nested, n)
			}
		}
		return t, nil

	case format.TypeProtocolComposition:
		t := &decl.ProtocolCompositionType{}
		slot.node = t
		for _, v := range rec.Array {
			p, err := r.Type(ctx, format.TypeID(v))
			if err != nil {
				return nil, err
			}
			t.Protocols = append(t.Protocols, p)
		}
		return t, nil

	case format.TypeSubstituted:
		t := &decl.SubstitutedType{}
		slot.node = t
		if t.Original, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Replacement, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeGenericParam:
		t := &decl.GenericParamType{}
		slot.node = t
		if t.Decl, err = declAs[decl.GenericParamDecl](ctx, r, rec.Scalars[0], "generic parameter type"); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeAssociated:
		t := &decl.AssociatedTypeType{}
		slot.node = t
		if t.Decl, err = declAs[decl.AssociatedTypeDecl](ctx, r, rec.Scalars[0], "associated type"); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeDependentMember:
		t := &decl.DependentMemberType{}
		slot.node = t
		if t.Base, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Name, err = r.Identifier(format.IdentifierID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeBoundGeneric:
		t := &decl.BoundGenericType{}
		slot.node = t
		if t.Decl, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Parent, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		for _, v := range rec.Array {
			a, err := r.Type(ctx, format.TypeID(v))
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, a)
		}
		if t.Substitutions, err = r.readSubstitutions(ctx, cur, rec.Scalars[2]); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypePolymorphicFunction:
		t := &decl.PolymorphicFunctionType{}
		slot.node = t
		if t.Input, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Result, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		if t.Owner, err = r.Decl(ctx, format.DeclID(rec.Scalars[2])); err != nil {
			return nil, err
		}
		conv := format.CallingConvention(rec.Scalars[3])
		if !conv.Valid() {
			return nil, corruptf(off, "invalid calling convention %d", rec.Scalars[3])
		}
		t.Convention = conv
		t.Thin = rec.Scalars[4] != 0
		t.NoReturn = rec.Scalars[5] != 0
		return t, nil

	case format.TypeUnboundGeneric:
		t := &decl.UnboundGenericType{}
		slot.node = t
		if t.Decl, err = r.Decl(ctx, format.DeclID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if t.Parent, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeSlice:
		t := &decl.SliceType{}
		slot.node = t
		if t.Element, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeArray:
		t := &decl.ArrayType{}
		slot.node = t
		if t.Element, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		t.Size = rec.Scalars[1]
		return t, nil

	case format.TypeReferenceStorage:
		t := &decl.ReferenceStorageType{}
		slot.node = t
		own := format.Ownership(rec.Scalars[0])
		if !own.Valid() {
			return nil, corruptf(off, "invalid reference ownership %d", rec.Scalars[0])
		}
		t.Ownership = own
		if t.Referent, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		return t, nil

	case format.TypeOptional:
		t := &decl.OptionalType{}
		slot.node = t
		if t.Element, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, corruptf(off, "unhandled type record tag %d", rec.Tag)
}

// readGenericParams decodes a generic parameter clause trailer: the list
// record, then one ref record per parameter, then the requirement records.
func (r *Reader) readGenericParams(ctx context.Context, cur *container.Reader) (*decl.GenericParams, error) {
	rec, err := r.expectRecord(cur, format.GenericParamList)
	if err != nil {
		return nil, err
	}
	gp := &decl.GenericParams{}
	numParams := rec.Scalars[0]
	numReqs := rec.Scalars[1]
	for _, v := range rec.Array {
		a, err := r.Type(ctx, format.TypeID(v))
		if err != nil {
			return nil, err
		}
		gp.Archetypes = append(gp.Archetypes, a)
	}
	for range numParams {
		ref, err := r.expectRecord(cur, format.GenericParamRef)
		if err != nil {
			return nil, err
		}
		p, err := declAs[decl.GenericParamDecl](ctx, r, ref.Scalars[0], "generic parameter")
		if err != nil {
			return nil, err
		}
		gp.Params = append(gp.Params, p)
	}
	for range numReqs {
		req, err := r.expectRecord(cur, format.GenericRequirement)
		if err != nil {
			return nil, err
		}
		kind := format.RequirementKind(req.Scalars[0])
		if !kind.Valid() {
			return nil, corruptf(cur.BitPos(), "invalid generic requirement kind %d", req.Scalars[0])
		}
		var rq decl.Requirement
		rq.Kind = kind
		if rq.First, err = r.Type(ctx, format.TypeID(req.Scalars[1])); err != nil {
			return nil, err
		}
		if rq.Second, err = r.Type(ctx, format.TypeID(req.Scalars[2])); err != nil {
			return nil, err
		}
		gp.Requirements = append(gp.Requirements, rq)
	}
	return gp, nil
}

// A trailer record costs at least its 2-bit entry code and 6-bit tag, so any
// record count a scalar field claims is bounded by the remaining stream.
const minTrailerBits = 8

// trailerCount rejects a count of trailer records that the stream could not
// possibly hold, before anything is allocated for it.
func trailerCount(cur *container.Reader, count uint64, what string) error {
	if count > cur.Remaining()/minTrailerBits {
		return corruptf(cur.BitPos(), "%s count %d past end of stream", what, count)
	}
	return nil
}

func (r *Reader) readConformances(ctx context.Context, cur *container.Reader, count uint64) ([]decl.Conformance, error) {
	if count == 0 {
		return nil, nil
	}
	if err := trailerCount(cur, count, "conformance"); err != nil {
		return nil, err
	}
	conformances := make([]decl.Conformance, 0, count)
	for range count {
		c, err := r.readConformance(ctx, cur)
		if err != nil {
			return nil, err
		}
		conformances = append(conformances, c)
	}
	return conformances, nil
}

// readConformance decodes one self-delimiting conformance with its trailers.
func (r *Reader) readConformance(ctx context.Context, cur *container.Reader) (decl.Conformance, error) {
	if err := r.push(cur.BitPos()); err != nil {
		return nil, err
	}
	defer r.pop()

	rec, err := r.graphRecord(cur)
	if err != nil {
		return nil, err
	}
	switch rec.Tag {
	case format.ConformanceNone:
		c := &decl.NoConformance{}
		if c.Protocol, err = declAs[decl.ProtocolDecl](ctx, r, rec.Scalars[0], "conformance protocol"); err != nil {
			return nil, err
		}
		return c, nil

	case format.ConformanceNormal:
		c := &decl.NormalConformance{}
		if c.Protocol, err = declAs[decl.ProtocolDecl](ctx, r, rec.Scalars[0], "conformance protocol"); err != nil {
			return nil, err
		}
		vw, tw := rec.Scalars[1], rec.Scalars[2]
		inh, def := rec.Scalars[3], rec.Scalars[4]
		// Bound each count by the witness array before summing them, so the
		// sum cannot wrap around a hostile count.
		n := uint64(len(rec.Array))
		if vw > n || tw > n || def > n || 3*vw+2*tw+def != n {
			return nil, corruptf(cur.BitPos(), "conformance witness data has %d values, counts are %d/%d/%d",
				n, vw, tw, def)
		}
		data := rec.Array
		subCounts := make([]uint64, 0, vw)
		for range vw {
			var w decl.ValueWitness
			if w.Requirement, err = r.Decl(ctx, format.DeclID(data[0])); err != nil {
				return nil, err
			}
			if w.Witness, err = r.Decl(ctx, format.DeclID(data[1])); err != nil {
				return nil, err
			}
			subCounts = append(subCounts, data[2])
			data = data[3:]
			c.ValueWitnesses = append(c.ValueWitnesses, w)
		}
		for range tw {
			var w decl.TypeWitness
			if w.AssociatedType, err = declAs[decl.AssociatedTypeDecl](ctx, r, data[0], "type witness requirement"); err != nil {
				return nil, err
			}
			if w.Witness, err = r.Type(ctx, format.TypeID(data[1])); err != nil {
				return nil, err
			}
			data = data[2:]
			c.TypeWitnesses = append(c.TypeWitnesses, w)
		}
		for range def {
			d, err := r.Decl(ctx, format.DeclID(data[0]))
			if err != nil {
				return nil, err
			}
			data = data[1:]
			c.Defaulted = append(c.Defaulted, d)
		}
		if c.Inherited, err = r.readConformances(ctx, cur, inh); err != nil {
			return nil, err
		}
		for i := range c.ValueWitnesses {
			subs, err := r.readSubstitutions(ctx, cur, subCounts[i])
			if err != nil {
				return nil, err
			}
			c.ValueWitnesses[i].Substitutions = subs
		}
		return c, nil

	case format.ConformanceSpecialized:
		c := &decl.SpecializedConformance{}
		if c.Protocol, err = declAs[decl.ProtocolDecl](ctx, r, rec.Scalars[0], "conformance protocol"); err != nil {
			return nil, err
		}
		if c.Generic, err = r.readConformance(ctx, cur); err != nil {
			return nil, err
		}
		if c.Substitutions, err = r.readSubstitutions(ctx, cur, rec.Scalars[1]); err != nil {
			return nil, err
		}
		return c, nil

	case format.ConformanceInherited:
		c := &decl.InheritedConformance{}
		if c.Protocol, err = declAs[decl.ProtocolDecl](ctx, r, rec.Scalars[0], "conformance protocol"); err != nil {
			return nil, err
		}
		if c.Underlying, err = r.readConformance(ctx, cur); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, corruptf(cur.BitPos(), "expected conformance record in trailer chain, found tag %d", rec.Tag)
}

func (r *Reader) readSubstitutions(ctx context.Context, cur *container.Reader, count uint64) ([]decl.Substitution, error) {
	if count == 0 {
		return nil, nil
	}
	if err := trailerCount(cur, count, "substitution"); err != nil {
		return nil, err
	}
	subs := make([]decl.Substitution, 0, count)
	for range count {
		rec, err := r.expectRecord(cur, format.GenericSubstitution)
		if err != nil {
			return nil, err
		}
		var sub decl.Substitution
		if sub.Archetype, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if sub.Replacement, err = r.Type(ctx, format.TypeID(rec.Scalars[1])); err != nil {
			return nil, err
		}
		if sub.Conformances, err = r.readConformances(ctx, cur, rec.Scalars[2]); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// readPattern decodes one pattern and, for the wrapping kinds, its
// sub-pattern records.
func (r *Reader) readPattern(ctx context.Context, cur *container.Reader) (decl.Pattern, error) {
	if err := r.push(cur.BitPos()); err != nil {
		return nil, err
	}
	defer r.pop()

	rec, err := r.graphRecord(cur)
	if err != nil {
		return nil, err
	}
	switch rec.Tag {
	case format.PatternParen:
		p := &decl.ParenPattern{Implicit: rec.Scalars[0] != 0}
		if p.Sub, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return p, nil

	case format.PatternTuple:
		p := &decl.TuplePattern{}
		if p.Type, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		count := rec.Scalars[1]
		p.Implicit = rec.Scalars[2] != 0
		p.Vararg = rec.Scalars[3] != 0
		for range count {
			erec, err := r.expectRecord(cur, format.PatternTupleElem)
			if err != nil {
				return nil, err
			}
			da := format.DefaultArgumentKind(erec.Scalars[0])
			if !da.Valid() {
				return nil, corruptf(cur.BitPos(), "invalid default argument kind %d", erec.Scalars[0])
			}
			sub, err := r.readPattern(ctx, cur)
			if err != nil {
				return nil, err
			}
			p.Elems = append(p.Elems, decl.TuplePatternElem{DefaultArg: da, Pattern: sub})
		}
		return p, nil

	case format.PatternNamed:
		p := &decl.NamedPattern{Implicit: rec.Scalars[1] != 0}
		if p.Var, err = declAs[decl.VarDecl](ctx, r, rec.Scalars[0], "named pattern variable"); err != nil {
			return nil, err
		}
		return p, nil

	case format.PatternAny:
		p := &decl.AnyPattern{Implicit: rec.Scalars[1] != 0}
		if p.Type, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		return p, nil

	case format.PatternTyped:
		p := &decl.TypedPattern{Implicit: rec.Scalars[1] != 0}
		if p.Type, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if p.Sub, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return p, nil

	case format.PatternIsa:
		p := &decl.IsaPattern{Implicit: rec.Scalars[1] != 0}
		if p.Type, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		return p, nil

	case format.PatternNominalType:
		p := &decl.NominalTypePattern{Implicit: rec.Scalars[1] != 0}
		if p.Type, err = r.Type(ctx, format.TypeID(rec.Scalars[0])); err != nil {
			return nil, err
		}
		if p.Sub, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return p, nil

	case format.PatternVar:
		p := &decl.VarPattern{Implicit: rec.Scalars[0] != 0}
		if p.Sub, err = r.readPattern(ctx, cur); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, corruptf(cur.BitPos(), "expected pattern record in trailer chain, found tag %d", rec.Tag)
}

// readDeclContext decodes the member list trailer of a context declaration.
func (r *Reader) readDeclContext(ctx context.Context, cur *container.Reader) ([]decl.Decl, error) {
	rec, err := r.expectRecord(cur, format.DeclContext)
	if err != nil {
		return nil, err
	}
	if len(rec.Array) == 0 {
		return nil, nil
	}
	members := make([]decl.Decl, 0, len(rec.Array))
	for _, v := range rec.Array {
		m, err := r.Decl(ctx, format.DeclID(v))
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}
