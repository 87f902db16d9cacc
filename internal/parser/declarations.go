package parser

import (
	"github.com/funvibe/qcp/internal/diag"
	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/token"
	"github.com/funvibe/qcp/internal/types"
)

type paramName struct {
	ident strpool.Ident
	loc   diag.SrcLoc
}

// declarator is the result of parsing one (possibly abstract) declarator:
// the composite type, the still-open base hole, and the introduced name.
type declarator struct {
	ty         types.Type
	base       types.BaseChainRef
	ident      strpool.Ident
	nameLoc    diag.SrcLoc
	paramNames []paramName
}

// declarationSpecifier is the parsed specifier run preceding declarators.
type declarationSpecifier struct {
	storageClass [2]token.Kind // token.Unknown when unset
	inline       bool
	noreturn     bool
	ty           types.Type
}

func (ds *declarationSpecifier) hasStorageClass(k token.Kind) bool {
	return ds.storageClass[0] == k || ds.storageClass[1] == k
}

// tokenCounter tallies the countable type-specifier keywords Bool..Complex.
type tokenCounter [token.Complex - token.Bool + 1]uint8

func (tc *tokenCounter) idx(k token.Kind) int { return int(k - token.Bool) }

func (tc *tokenCounter) inc(k token.Kind)       { tc[tc.idx(k)]++ }
func (tc *tokenCounter) count(k token.Kind) int { return int(tc[tc.idx(k)]) }

// consume takes one occurrence of k, reporting whether one was present.
func (tc *tokenCounter) consume(k token.Kind) bool {
	if tc[tc.idx(k)] > 0 {
		tc[tc.idx(k)]--
		return true
	}
	return false
}

func (tc *tokenCounter) tokenAt(i int) token.Kind { return token.Bool + token.Kind(i) }

// parseDeclarationSpecifierList parses the order-insensitive specifier run:
// storage classes, qualifiers, function specifiers, and exactly one type.
func (p *Parser) parseDeclarationSpecifierList(storageClassOK, fnSpecOK bool) declarationSpecifier {
	p.enter("parseDeclarationSpecifierList")
	defer p.exit("parseDeclarationSpecifierList")

	var declSpec declarationSpecifier
	var ty types.Type
	var completes *types.Type
	var tag strpool.Ident
	var tagLoc diag.SrcLoc

	var tycount tokenCounter
	var qualifiers types.Qualifiers
	startLoc := p.cur.Loc

	for isDeclarationSpecifier(p.cur.Kind) {
		t := p.cur
		kind := t.Kind

		switch {
		case isStorageClassSpecifier(kind):
			p.next()
			switch {
			case !storageClassOK:
				p.diags.Errorf(t.Loc, "storage class specifier is not allowed here")
			case declSpec.storageClass[0] == token.Unknown:
				declSpec.storageClass[0] = kind
			case declSpec.storageClass[1] == token.Unknown:
				declSpec.storageClass[1] = kind
			default:
				p.diags.Errorf(t.Loc, "at most two storage class specifiers are allowed")
			}

		case isFunctionSpecifier(kind):
			p.next()
			if !fnSpecOK {
				p.diags.Errorf(t.Loc, "function specifier is not allowed here")
			} else if kind == token.Inline {
				declSpec.inline = true
			} else {
				declSpec.noreturn = true
			}

		case isTypeQualifier(kind):
			p.next()
			switch kind {
			case token.Const:
				qualifiers.Const = true
			case token.Restrict:
				qualifiers.Restrict = true
			case token.Volatile:
				qualifiers.Volatile = true
			case token.Atomic:
				p.diags.Errorf(t.Loc, "'_Atomic' is not supported")
			}

		case !ty.IsNil():
			p.diags.Errorf(t.Loc, "cannot combine '%s' with previous type '%s'", kind, ty)
			p.next()

		case kind == token.BitInt:
			p.diags.Errorf(t.Loc, "'_BitInt' is not supported")
			p.next()
			p.skipBalancedParens()

		case kind >= token.Bool && kind <= token.Complex:
			p.next()
			tycount.inc(kind)

		case kind == token.Struct || kind == token.Union:
			ty, completes, tag, tagLoc = p.parseStructOrUnionSpecifier()

		case kind == token.Enum:
			ty, completes, tag, tagLoc = p.parseEnumSpecifier()

		case kind == token.Typeof || kind == token.TypeofUnqual:
			p.next()
			p.expect(token.LParen, "after 'typeof'")
			if isTypeSpecifierQualifier(p.cur.Kind) {
				ty = p.parseTypeName()
			} else {
				ty = p.parseExpr(0).ty
			}
			if kind == token.TypeofUnqual {
				ty = ty.Unqualified()
			}
			p.expect(token.RParen, "to end 'typeof'")

		case kind == token.Void:
			ty = p.factory.VoidTy()
			p.next()

		case kind == token.Alignas:
			p.diags.Errorf(t.Loc, "'alignas' is not supported")
			p.next()
			p.skipBalancedParens()

		case kind == token.Imaginary:
			p.diags.Errorf(t.Loc, "'_Imaginary' is not supported")
			p.next()

		default:
			p.diags.Errorf(t.Loc, "unexpected token %s in declaration specifiers", kind)
			p.next()
		}
	}

	if ty.IsNil() {
		ty = p.typeFromCounter(&tycount, startLoc)
	}

	ty = ty.Qualified(qualifiers)

	for i := 0; i < len(tycount); i++ {
		if tycount[i] > 0 {
			p.diags.Errorf(startLoc, "cannot combine specifier %s with '%s'", tycount.tokenAt(i), ty)
		}
	}

	p.checkStorageClasses(&declSpec, startLoc)

	if completes != nil {
		switch {
		case !p.tagScope.CanInsert(tag) && completes.IsComplete() && ty.IsComplete() && *completes != ty:
			p.errorRedef(tagLoc, tag, types.Type{}, types.Type{})
			p.notePrevDefHere(p.tagScope.Find(tag).Loc)
			completes = nil
		case !ty.IsComplete():
			ty = *completes
			completes = nil
		}
	}

	ty = p.factory.Harden(ty, completes)
	if completes != nil {
		*completes = ty
	}
	if !tag.IsEmpty() {
		p.tagScope.Insert(tag, TagInfo{Loc: tagLoc, Ty: ty})
	}

	declSpec.ty = ty
	return declSpec
}

// typeFromCounter resolves the counted single-keyword specifiers into a
// type: first the standalone ones, then the signed/unsigned int family.
func (p *Parser) typeFromCounter(tycount *tokenCounter, loc diag.SrcLoc) types.Type {
	singles := []struct {
		tk token.Kind
		ty types.Kind
	}{
		{token.Float, types.Float},
		{token.Decimal32, types.Decimal32},
		{token.Decimal64, types.Decimal64},
		{token.Decimal128, types.Decimal128},
		{token.Bool, types.Bool},
	}
	for _, s := range singles {
		if tycount.consume(s.tk) {
			return p.factory.RealTy(s.ty)
		}
	}
	if tycount.consume(token.Complex) {
		p.diags.Errorf(loc, "'_Complex' is not supported")
		return p.factory.RealTy(types.Double)
	}

	unsigned := tycount.consume(token.Unsigned)
	signed := tycount.consume(token.Signed)
	hasInt := tycount.consume(token.Int)

	longs := tycount.count(token.Long)
	if longs > 2 {
		longs = 2
	}

	if unsigned && signed {
		p.diags.Errorf(loc, "cannot combine 'signed' and 'unsigned'")
	}

	switch {
	case tycount.consume(token.Char):
		if hasInt {
			tycount.inc(token.Int)
		}
		if !signed && !unsigned {
			return p.factory.CharTy()
		}
		return p.factory.IntegralTy(types.Char, unsigned)

	case tycount.consume(token.Short):
		return p.factory.IntegralTy(types.Short, unsigned)

	case tycount.count(token.Double) >= 1:
		tycount.consume(token.Double)
		if longs == 1 {
			tycount.consume(token.Long)
			return p.factory.RealTy(types.LongDouble)
		}
		return p.factory.RealTy(types.Double)

	case longs == 1:
		tycount.consume(token.Long)
		return p.factory.IntegralTy(types.Long, unsigned)

	case longs == 2:
		tycount.consume(token.Long)
		tycount.consume(token.Long)
		return p.factory.IntegralTy(types.LongLong, unsigned)
	}

	if !hasInt && !unsigned && !signed {
		p.diags.Errorf(loc.Truncate(0), "a type specifier is required for all declarations")
	}
	return p.factory.IntTy(unsigned)
}

// checkStorageClasses applies the storage-class pair legality rules.
func (p *Parser) checkStorageClasses(ds *declarationSpecifier, loc diag.SrcLoc) {
	if ds.storageClass[1] == token.Unknown {
		return
	}
	bad := ds.hasStorageClass(token.Auto) && ds.hasStorageClass(token.Typedef) ||
		ds.hasStorageClass(token.ThreadLocal) && !(ds.hasStorageClass(token.Static) || ds.hasStorageClass(token.Extern)) ||
		ds.hasStorageClass(token.Constexpr) && !(ds.hasStorageClass(token.Register) || ds.hasStorageClass(token.Extern))
	if bad {
		p.diags.Errorf(loc, "cannot combine storage class specifiers '%s' and '%s'",
			ds.storageClass[0], ds.storageClass[1])
	}
}

// parseStructOrUnionSpecifier parses `struct|union tag? { members }?`.
// A known tag is returned as the completion target so harden can fill the
// forward declaration in place.
func (p *Parser) parseStructOrUnionSpecifier() (types.Type, *types.Type, strpool.Ident, diag.SrcLoc) {
	structOrUnion := p.cur.Kind
	p.next()
	p.parseOptAttributeSpecifierSequence()

	var tag strpool.Ident
	var tagLoc diag.SrcLoc
	var completes *types.Type
	if t := p.consumeAnyOf(token.Ident); t.Valid() {
		tag = t.Ident
		tagLoc = t.Loc
		if ti := p.tagScope.Find(tag); ti != nil {
			completes = &ti.Ty
		}
	}

	var ty types.Type
	if p.consumeOpt(token.LBrace) {
		var members []types.Member
		var locs []diag.SrcLoc
		for !p.curIs(token.RBrace) && !p.curIs(token.EOF) {
			p.parseOptAttributeSpecifierSequence()
			if !isTypeSpecifierQualifier(p.cur.Kind) {
				p.diags.Errorf(p.cur.Loc, "type name requires a specifier or qualifier")
				p.next()
				continue
			}
			memberTy := p.parseSpecifierQualifierList()
			p.parseOptMemberDeclaratorList(memberTy, &members, &locs)
			p.expect(token.Semi, "at end of declaration list", token.RBrace)
		}
		p.expect(token.RBrace, "to close member list")
		ty = p.factory.StructOrUnion(structOrUnion, members, false, tag)
	} else if tag.IsEmpty() {
		p.diags.Errorf(p.cur.Loc, "expected identifier or member declaration list")
	} else {
		ty = p.factory.StructOrUnion(structOrUnion, nil, true, tag)
	}
	return ty, completes, tag, tagLoc
}

// parseEnumSpecifier parses `enum tag? (: type)? { enumerators }?`. The
// underlying type grows past int when enumerator values require it.
func (p *Parser) parseEnumSpecifier() (types.Type, *types.Type, strpool.Ident, diag.SrcLoc) {
	p.next()
	p.parseOptAttributeSpecifierSequence()

	var tag strpool.Ident
	var tagLoc diag.SrcLoc
	var completes *types.Type
	if t := p.consumeAnyOf(token.Ident); t.Valid() {
		tag = t.Ident
		tagLoc = t.Loc
		if ti := p.tagScope.Find(tag); ti != nil {
			completes = &ti.Ty
		}
	}

	var underlyingTy, maxTy types.Type
	currentTy := p.factory.IntTy(false)
	if p.consumeOpt(token.Colon) {
		underlyingTy = p.parseSpecifierQualifierList()
		maxTy = underlyingTy
		currentTy = underlyingTy
	}

	if p.consumeOpt(token.LBrace) {
		maxIntValue := uint64(1)<<(types.DefaultTarget.IntBits-1) - 1
		maxLongValue := uint64(1)<<(types.DefaultTarget.LongBits-1) - 1
		value := ^uint64(0)

		for !p.curIs(token.RBrace) && !p.curIs(token.EOF) {
			enumConstant := p.expect(token.Ident, "in enumerator list", token.RBrace)
			if !enumConstant.Valid() {
				break
			}
			name := enumConstant.Ident
			p.parseOptAttributeSpecifierSequence()

			if p.consumeOpt(token.Assign) {
				constant := p.parseConditionalExpr()
				if !constant.val.IsIConst() {
					p.diags.Errorf(constant.loc, "enumerator value is not an integer constant expression")
					if !p.consumeOpt(token.Comma) {
						break
					}
					continue
				}
				if constant.ty.IsSigned() {
					value = uint64(p.em.IntegerValue(constant.val))
				} else {
					value = p.em.UIntegerValue(constant.val)
				}
				if underlyingTy.IsNil() && value > maxIntValue {
					currentTy = constant.ty
				}
			} else {
				value++
				if value > maxIntValue && currentTy.Kind() != types.Long && underlyingTy.IsNil() {
					kind := types.Long
					if value > maxLongValue {
						kind = types.LongLong
					}
					if currentTy.Kind() != kind {
						currentTy = p.factory.Harden(p.factory.IntegralTy(kind, !currentTy.IsSigned()), nil)
					}
				}
			}

			c := p.em.EmitIConst(currentTy, value)
			if !p.varScope.CanInsert(name) {
				p.diags.Errorf(enumConstant.Loc.Truncate(0), "redefinition of enumerator '%s'", name)
				p.notePrevDefHere(p.varScope.Find(name).Loc)
			} else {
				p.varScope.Insert(name, ScopeInfo{Ty: currentTy, Loc: enumConstant.Loc, Val: c, HasDefOrInit: true})
			}

			if !maxTy.IsNil() {
				maxTy = p.factory.CommonRealType(maxTy, currentTy)
			} else {
				maxTy = currentTy
			}

			if !p.consumeOpt(token.Comma) {
				break
			}
		}
		p.expect(token.RBrace, "to close enumerator list")
	} else if tag.IsEmpty() {
		p.diags.Errorf(p.cur.Loc, "expected identifier or enumerator list")
	}

	ty := p.factory.EnumTy(maxTy, !underlyingTy.IsNil(), tag)
	return ty, completes, tag, tagLoc
}

// declarator parsing

// parseDeclarator parses a declarator against the given specifier-qualifier
// type, splices the base type into the open hole, and hardens the result.
func (p *Parser) parseDeclarator(specQual types.Type) declarator {
	p.enter("parseDeclarator")
	defer p.exit("parseDeclarator")

	decl := p.parseDeclaratorImpl()
	if decl.ty != (types.Type{}) {
		if decl.base.Valid() {
			if decl.ty.IsFn() && !specQual.IsComplete() && !specQual.IsVoid() {
				p.diags.Errorf(decl.nameLoc, "incomplete result type '%s' in function declaration", specQual)
				*decl.base.Deref() = p.factory.IntTy(false)
			} else {
				*decl.base.Deref() = specQual
			}
		}
	} else {
		decl.ty = specQual
	}

	decl.ty = p.factory.Harden(decl.ty, nil)
	decl.base = types.BaseChainRef{}
	return decl
}

// parseDirectDeclarator additionally requires the declarator to introduce a
// name.
func (p *Parser) parseDirectDeclarator(specQual types.Type) declarator {
	decl := p.parseDeclarator(specQual)
	if decl.ident.IsEmpty() {
		p.diags.Errorf(decl.nameLoc.Truncate(0), "expected identifier in declaration")
	}
	return decl
}

// parseAbstractDeclarator parses a declarator that must not introduce a
// name (type names, unnamed parameters).
func (p *Parser) parseAbstractDeclarator(specQual types.Type) types.Type {
	decl := p.parseDeclarator(specQual)
	if !decl.ident.IsEmpty() {
		p.diags.Errorf(decl.nameLoc, "identifier '%s' is not allowed in an abstract declarator", decl.ident)
	}
	return decl.ty
}

func (p *Parser) parseMemberDeclarator(specQual types.Type) declarator {
	loc := p.cur.Loc
	var decl declarator
	if isDeclaratorStart(p.cur.Kind) {
		decl = p.parseDeclarator(specQual)
	} else {
		decl.ty = specQual
		decl.nameLoc = loc
	}
	if p.consumeOpt(token.Colon) {
		p.diags.Errorf(p.cur.Loc, "bit-fields are not supported")
		p.parseConditionalExpr()
	}
	return decl
}

// parseDeclaratorImpl builds the two fragment chains of C's inside-out
// declarator syntax: pointers on the left, array and function suffixes on
// the right, spliced so the right chain's hole receives the left chain.
func (p *Parser) parseDeclaratorImpl() declarator {
	var lhsTy types.Type
	var lhsBase types.BaseChainRef
	var decl declarator

	for p.consumeOpt(token.Mul) {
		p.parseOptAttributeSpecifierSequence()
		ty := p.factory.PtrTo(types.Type{})
		var qual types.Qualifiers
		for isTypeQualifier(p.cur.Kind) {
			switch p.cur.Kind {
			case token.Const:
				qual.Const = true
			case token.Restrict:
				qual.Restrict = true
			case token.Volatile:
				qual.Volatile = true
			}
			p.next()
		}
		ty = ty.Qualified(qual)
		lhsBase.Chain(ty)
		if lhsTy == (types.Type{}) {
			lhsTy = ty
		}
	}

	var rhsTy types.Type
	var rhsBase types.BaseChainRef

	decl.nameLoc = p.cur.Loc
	if t := p.consumeAnyOf(token.Ident); t.Valid() {
		decl.ident = t.Ident
	}

	if decl.ident.IsEmpty() && p.curIs(token.LParen) && isAbstractDeclaratorStart(p.peek.Kind) {
		// parenthesized inner declarator
		p.expect(token.LParen, "")
		inner := p.parseDeclaratorImpl()
		rhsTy = inner.ty
		rhsBase = inner.base
		decl.ident = inner.ident
		decl.nameLoc = inner.nameLoc
		decl.paramNames = inner.paramNames
		p.expect(token.RParen, "to close declarator")
	}
	p.parseOptAttributeSpecifierSequence()

	for {
		t := p.consumeAnyOf(token.LBrack, token.LParen)
		if !t.Valid() {
			break
		}
		if t.Kind == token.LBrack {
			arrTy := p.parseArrayDeclaratorSuffix(&decl)
			rhsBase.Chain(arrTy)
			if rhsTy == (types.Type{}) {
				rhsTy = arrTy
			}
		} else {
			p.varScope.Enter()
			p.tagScope.Enter()
			var paramTys []types.Type
			varargs := p.parseParameterList(&paramTys, &decl.paramNames)
			p.tagScope.Leave()
			p.varScope.Leave()

			p.expect(token.RParen, "to end parameter list", token.Comma, token.Semi, token.LBrace)

			fnTy := p.factory.Function(types.Type{}, paramTys, varargs)
			rhsBase.Chain(fnTy)
			if rhsTy == (types.Type{}) {
				rhsTy = fnTy
			}
		}
		p.parseOptAttributeSpecifierSequence()
	}

	switch {
	case rhsTy != (types.Type{}) && lhsTy != (types.Type{}):
		decl.ty = rhsTy
		if rhsBase.Valid() {
			*rhsBase.Deref() = lhsTy
		}
		decl.base = lhsBase
	case rhsTy != (types.Type{}):
		decl.ty = rhsTy
		decl.base = rhsBase
	default:
		decl.ty = lhsTy
		decl.base = lhsBase
	}
	return decl
}

// parseArrayDeclaratorSuffix parses `[static? qualifiers? (*|expr)?]` after
// the opening bracket has been consumed.
func (p *Parser) parseArrayDeclaratorSuffix(decl *declarator) types.Type {
	static := p.consumeOpt(token.Static)

	qualified := false
	for isTypeQualifier(p.cur.Kind) {
		qualified = true
		p.next()
	}
	if p.consumeOpt(token.Static) {
		if static {
			p.diags.Errorf(p.cur.Loc, "'static' may be used at most once in an array declarator")
		}
		static = true
	}

	var arrTy types.Type
	switch {
	case p.consumeOpt(token.Mul):
		if static {
			p.diags.Errorf(p.cur.Loc, "'static' cannot be used with '*' in an array declarator")
		}
		if decl.ident.IsEmpty() && qualified {
			p.diags.Errorf(p.cur.Loc, "type qualifiers are not allowed in an abstract array declarator")
		}
		arrTy = p.factory.ArrayOfUnspec(types.Type{}, true)

	case !p.curIs(token.RBrack):
		sizeExpr := p.parseAssignmentExpr()
		if !sizeExpr.ty.IsNil() && !sizeExpr.ty.IsInteger() {
			p.diags.Errorf(sizeExpr.loc, "size of array has non-integer type '%s'", sizeExpr.ty)
			arrTy = p.factory.ArrayOfUnspec(types.Type{}, false)
			break
		}
		switch {
		case sizeExpr.val.IsIConst():
			var size uint64
			negative := false
			if sizeExpr.ty.IsSigned() {
				v := p.em.IntegerValue(sizeExpr.val)
				if v < 0 {
					negative = true
					if !decl.ident.IsEmpty() {
						p.diags.Errorf(sizeExpr.loc, "'%s' declared as an array with a negative size", decl.ident)
					} else {
						p.diags.Errorf(sizeExpr.loc, "array size must be a positive integer constant expression")
					}
				} else {
					size = uint64(v)
				}
			} else {
				size = p.em.UIntegerValue(sizeExpr.val)
			}
			if size == 0 && !negative {
				if !decl.ident.IsEmpty() {
					p.diags.Errorf(sizeExpr.loc, "'%s' declared as an array with zero size", decl.ident)
				} else {
					p.diags.Errorf(sizeExpr.loc, "array size must be a positive integer constant expression")
				}
			}
			arrTy = p.factory.ArrayOf(types.Type{}, size)
		case sizeExpr.val.IsSSA():
			arrTy = p.factory.ArrayOfVLA(types.Type{}, sizeExpr.val.Ref)
		default:
			arrTy = p.factory.ArrayOfUnspec(types.Type{}, false)
		}

	default:
		if static {
			p.diags.Errorf(p.cur.Loc, "'static' requires an array size")
		}
		arrTy = p.factory.ArrayOfUnspec(types.Type{}, false)
	}

	p.expect(token.RBrack, "to close array declarator")
	return arrTy
}

// parseParameterList parses declarations up to the closing paren and
// reports whether the list ends in `...`. Parameters get their own ordinary
// and tag scope.
func (p *Parser) parseParameterList(paramTys *[]types.Type, paramNames *[]paramName) bool {
	p.enter("parseParameterList")
	defer p.exit("parseParameterList")

	for isDeclarationSpecifier(p.cur.Kind) || p.curIs(token.Ellipsis) {
		if p.consumeOpt(token.Ellipsis) {
			return true
		}
		p.parseOptAttributeSpecifierSequence()
		specQual := p.parseSpecifierQualifierList()

		decl := p.parseDeclarator(specQual)
		if decl.ty.Kind() == types.Void {
			if len(*paramTys) > 0 {
				p.diags.Errorf(decl.nameLoc, "'void' must be the first and only parameter if specified")
			}
			if !decl.ident.IsEmpty() {
				p.diags.Errorf(decl.nameLoc, "argument may not have 'void' type")
			}
			if !p.curIs(token.RParen) {
				p.diags.Errorf(p.cur.Loc, "'void' must be the first and only parameter if specified")
			}
			break
		}
		if !decl.ty.IsComplete() && !decl.ty.IsArray() {
			p.diags.Errorf(decl.nameLoc, "parameter has incomplete type '%s'", decl.ty)
		}

		if decl.ty.IsArray() {
			// arrays in parameter position decay to pointers, keeping the
			// qualifier set
			ptr := p.factory.PtrTo(decl.ty.Elem()).Qualified(decl.ty.Qual)
			decl.ty = p.factory.Harden(ptr, nil)
		}

		*paramTys = append(*paramTys, decl.ty)
		*paramNames = append(*paramNames, paramName{ident: decl.ident, loc: decl.nameLoc})

		if !decl.ident.IsEmpty() {
			if _, ok := p.varScope.Insert(decl.ident, ScopeInfo{Ty: decl.ty, Loc: decl.nameLoc}); !ok {
				p.diags.Errorf(decl.nameLoc.Truncate(0), "redefinition of parameter '%s'", decl.ident)
				p.notePrevDeclHere(p.varScope.Find(decl.ident))
			}
		}

		if !p.consumeOpt(token.Comma) {
			break
		}
	}
	return false
}

// parseOptMemberDeclaratorList parses the declarators of one member
// declaration line.
func (p *Parser) parseOptMemberDeclaratorList(specQual types.Type, members *[]types.Member, locs *[]diag.SrcLoc) {
	p.parseOptAttributeSpecifierSequence()
	if !isDeclaratorStart(p.cur.Kind) && !p.curIs(token.Colon) {
		// anonymous member (e.g. `struct { ... };` without declarator)
		*members = append(*members, types.Member{Ty: specQual})
		*locs = append(*locs, p.cur.Loc)
		return
	}
	for {
		decl := p.parseMemberDeclarator(specQual)
		for i, m := range *members {
			if !m.Name.IsEmpty() && m.Name == decl.ident {
				p.diags.Errorf(decl.nameLoc, "duplicate member '%s'", decl.ident)
				p.notePrevWhatHere("declaration", (*locs)[i])
			}
		}
		*members = append(*members, types.Member{Name: decl.ident, Ty: decl.ty})
		*locs = append(*locs, decl.nameLoc)
		if !p.consumeOpt(token.Comma) {
			return
		}
	}
}

// parseOptAttributeSpecifierSequence consumes and discards C23 `[[...]]`
// and GNU `__attribute__((...))` attribute runs.
func (p *Parser) parseOptAttributeSpecifierSequence() {
	for {
		switch {
		case p.curIs(token.LBrack) && p.peekIs(token.LBrack):
			depth := 0
			for !p.curIs(token.EOF) {
				switch p.cur.Kind {
				case token.LBrack:
					depth++
				case token.RBrack:
					depth--
				}
				p.next()
				if depth == 0 {
					break
				}
			}
		case p.curIs(token.Ident) && p.cur.Ident == p.attributeIdent:
			p.next()
			p.skipBalancedParens()
		default:
			return
		}
	}
}

// parseSpecifierQualifierList is the restricted specifier list used in type
// names, member declarations, and parameters.
func (p *Parser) parseSpecifierQualifierList() types.Type {
	return p.parseDeclarationSpecifierList(false, false).ty
}

// parseTypeName parses `specifier-qualifier-list abstract-declarator?`.
func (p *Parser) parseTypeName() types.Type {
	p.enter("parseTypeName")
	defer p.exit("parseTypeName")

	ty := p.parseSpecifierQualifierList()
	p.parseOptAttributeSpecifierSequence()
	return p.parseAbstractDeclarator(ty)
}

// parseStaticAssert handles `static_assert(const-expr, "msg"?);`.
func (p *Parser) parseStaticAssert() {
	loc := p.cur.Loc
	p.next()
	p.expect(token.LParen, "after 'static_assert'")
	cond := p.parseConditionalExpr()
	var msg string
	if p.consumeOpt(token.Comma) {
		if t := p.expect(token.StrLit, "as static_assert message"); t.Valid() {
			msg = t.SVal
		}
	}
	p.expect(token.RParen, "to end 'static_assert'")
	p.expect(token.Semi, "after 'static_assert'")

	if !cond.val.IsIConst() {
		p.diags.Errorf(cond.loc, "static assertion expression is not an integral constant expression")
		return
	}
	if p.em.UIntegerValue(cond.val) == 0 {
		if msg != "" {
			p.diags.Errorf(loc, "static assertion failed: %s", msg)
		} else {
			p.diags.Errorf(loc, "static assertion failed")
		}
	}
}

// parseDeclStmt parses one declaration statement: specifiers, then a comma
// separated init-declarator list, including function definitions at file
// scope.
func (p *Parser) parseDeclStmt() {
	if p.curIs(token.StaticAssert) {
		p.parseStaticAssert()
		return
	}

	declSpec := p.parseDeclarationSpecifierList(true, true)
	if declSpec.hasStorageClass(token.Typedef) {
		p.diags.Errorf(p.cur.Loc, "typedef declarations are not supported")
	}

	if p.consumeOpt(token.Semi) {
		// tag declaration without declarators
		p.factory.ClearFragments()
		return
	}

	mayBeFunctionDef := true
	for {
		decl := p.parseDirectDeclarator(declSpec.ty)
		p.factory.ClearFragments()
		if decl.ident.IsEmpty() {
			if !p.consumeOpt(token.Comma) {
				break
			}
			continue
		}

		if decl.ty.IsFn() {
			if p.declareFunction(&declSpec, &decl, mayBeFunctionDef) {
				// a function definition ends the declaration
				return
			}
		} else {
			p.declareVariable(&declSpec, &decl)
		}

		mayBeFunctionDef = false
		if !p.consumeOpt(token.Comma) {
			break
		}
	}

	where := "at end of declaration"
	if p.varScope.IsTopLevel() {
		where = "after top level declarator"
	}
	p.expect(token.Semi, where)
}

// declareFunction binds a function declarator, parsing the body when one
// follows. Returns true when a body was parsed.
func (p *Parser) declareFunction(declSpec *declarationSpecifier, decl *declarator, mayBeFunctionDef bool) bool {
	info := p.varScope.Find(decl.ident)
	canInsert := p.varScope.CanInsert(decl.ident)

	if !p.varScope.IsTopLevel() {
		// block-scope function declaration: bind a prototype without
		// disturbing the enclosing function's state
		if p.curIs(token.LBrace) {
			p.diags.Errorf(decl.nameLoc.Truncate(0), "nested function definitions are not allowed")
			p.skipBalancedBraces()
			return false
		}
		if !canInsert {
			p.errorRedef(decl.nameLoc, decl.ident, decl.ty, info.Ty)
			p.notePrevDefHere(info.Loc)
			return false
		}
		fn := p.em.EmitFnProto(decl.ty, declSpec.inline, declSpec.noreturn, decl.ident)
		p.varScope.Insert(decl.ident, ScopeInfo{Ty: decl.ty, Loc: decl.nameLoc, Val: fn})
		return false
	}

	if info != nil && !info.Ty.IsCompatibleWith(decl.ty) {
		p.diags.Errorf(decl.nameLoc.Truncate(0), "conflicting types for '%s'", decl.ident)
		p.notePrevDeclHere(info)
		decl.ty = info.Ty
	}

	if info != nil && info.Val.IsFn() {
		p.state.fn = info.Val
	} else {
		p.state.fn = p.em.EmitFnProto(decl.ty, declSpec.inline, declSpec.noreturn, decl.ident)
	}
	p.state.retTy = decl.ty.Elem()
	p.state.fnName = decl.ident

	if canInsert {
		info, _ = p.varScope.Insert(decl.ident, ScopeInfo{Ty: decl.ty, Loc: decl.nameLoc, Val: p.state.fn})
	}

	if mayBeFunctionDef && p.curIs(token.LBrace) {
		if info != nil && info.HasDefOrInit {
			p.errorRedef(decl.nameLoc, decl.ident, decl.ty, info.Ty)
			p.notePrevDefHere(info.Loc)
		}
		if info != nil {
			info.HasDefOrInit = true
		}
		p.parseFunctionDefinition(decl)
		return true
	}
	return false
}

// declareVariable binds a non-function declarator and parses its optional
// initializer. File-scope declarations without initializer join the
// tentative or extern lists resolved at end of translation unit.
func (p *Parser) declareVariable(declSpec *declarationSpecifier, decl *declarator) {
	info := p.varScope.Find(decl.ident)
	canInsert := p.varScope.CanInsert(decl.ident)

	if !canInsert && !p.varScope.IsTopLevel() {
		p.errorRedef(decl.nameLoc, decl.ident, decl.ty, info.Ty)
		p.notePrevDefHere(info.Loc)
	} else if p.varScope.IsTopLevel() && info != nil && !info.Ty.IsCompatibleWith(decl.ty) &&
		info.Ty.IsComplete() && decl.ty.IsComplete() {
		p.diags.Errorf(decl.nameLoc.Truncate(0), "conflicting types for '%s'", decl.ident)
		p.notePrevDeclHere(info)
		decl.ty = info.Ty
	}

	isGlobal := p.varScope.IsTopLevel() || declSpec.hasStorageClass(token.Static)

	var v emitter.Value
	switch {
	case isGlobal && decl.ty.IsComplete() && (canInsert || info == nil || info.Val.IsZero()):
		name := decl.ident
		if !p.state.fnName.IsEmpty() {
			name = strpool.Intern(p.state.fnName.String() + "." + decl.ident.String())
		}
		v = p.em.EmitGlobalVar(decl.ty, name)
	case !isGlobal:
		if !decl.ty.IsComplete() {
			p.errorVarIncompleteType(decl.nameLoc, decl.ty)
			if ti := p.tagScope.Find(decl.ty.Tag()); ti != nil {
				p.noteForwardDeclHere(ti.Loc, decl.ty)
			}
			decl.ty = p.factory.UndefTy()
		} else {
			v = p.em.EmitLocalVar(p.state.fn, p.state.entry, decl.ty, decl.ident, false)
		}
	}

	switch {
	case canInsert:
		info, _ = p.varScope.Insert(decl.ident, ScopeInfo{Ty: decl.ty, Loc: decl.nameLoc, Val: v})
	case info != nil && info.Val.IsZero():
		info.Val = v
	case info != nil:
		v = info.Val
	}

	if info != nil && !info.Ty.IsComplete() && decl.ty.IsComplete() {
		info.Ty = decl.ty
	}

	if assignTok := p.consumeAnyOf(token.Assign); assignTok.Valid() {
		p.parseVariableInitializer(decl, declSpec, info, v, assignTok.Loc, canInsert, isGlobal)
	} else if isGlobal && !decl.ident.IsEmpty() && info != nil {
		if declSpec.hasStorageClass(token.Extern) {
			p.externDecls = append(p.externDecls, info)
		} else if canInsert {
			p.missingInit = append(p.missingInit, info)
		}
	}
}

func (p *Parser) parseVariableInitializer(decl *declarator, declSpec *declarationSpecifier, info *ScopeInfo, v emitter.Value, assignLoc diag.SrcLoc, canInsert, isGlobal bool) {
	switch {
	case !decl.ty.IsComplete() && !decl.ty.IsNil():
		p.errorVarIncompleteType(decl.nameLoc, decl.ty)
		decl.ty = p.factory.UndefTy()
	case info != nil && info.Ty.IsFn():
		p.diags.Errorf(assignLoc, "illegal initializer (only variables can be initialized)")
	case p.varScope.IsTopLevel() && !canInsert && info != nil && !info.Val.IsZero() &&
		info.HasDefOrInit:
		p.errorRedef(decl.nameLoc, decl.ident, decl.ty, info.Ty)
		p.notePrevDefHere(info.Loc)
	}

	if info != nil {
		info.HasDefOrInit = true
	}

	if p.curIs(token.LBrace) {
		p.diags.Errorf(p.cur.Loc, "initializer lists are not supported")
		p.skipBalancedBraces()
		return
	}

	initExpr := p.parseAssignmentExpr()
	if !p.varScope.IsTopLevel() && !initExpr.ty.IsNil() && initExpr.ty.IsArray() {
		p.optArrToPtrDecay(initExpr)
	}

	switch {
	case decl.ty.IsNil() || initExpr.ty.IsNil():
		return
	case decl.ty.IsVoid() || initExpr.ty.IsVoid():
		p.diags.Errorf(decl.nameLoc.Truncate(0), "invalid use of void expression")
	case isGlobal:
		if initExpr.val.IsSSA() {
			p.diags.Errorf(initExpr.loc, "initializer element is not a compile-time constant")
			p.em.SetGlobalInit(v, p.defaultValue(decl.ty))
		} else {
			init := p.castValue(initExpr.loc, initExpr.ty, decl.ty, initExpr.val, false)
			p.em.SetGlobalInit(v, init)
		}
		p.dropPendingInit(info)
	case p.isSealed(p.state.bb):
		// unreachable initialization; nothing to emit
	default:
		p.emitAssignment(assignLoc, decl.ty, v, initExpr)
	}
}

// dropPendingInit removes info from the tentative and extern lists once a
// real initializer supersedes them.
func (p *Parser) dropPendingInit(info *ScopeInfo) {
	for i, m := range p.missingInit {
		if m == info {
			p.missingInit = append(p.missingInit[:i], p.missingInit[i+1:]...)
			break
		}
	}
	for i, m := range p.externDecls {
		if m == info {
			p.externDecls = append(p.externDecls[:i], p.externDecls[i+1:]...)
			break
		}
	}
}

// defaultValue builds the zero-value constant used for tentative
// definitions at end of translation unit.
func (p *Parser) defaultValue(ty types.Type) emitter.Value {
	switch {
	case ty.IsPointer():
		return p.em.EmitNullPtr(ty)
	case ty.IsInteger():
		return p.em.EmitIConst(ty, 0)
	case ty.IsFloating():
		return p.em.EmitFPConst(ty, 0)
	case ty.IsArray():
		return p.em.EmitArrayConstSplat(ty, p.defaultValue(ty.Elem()))
	case ty.Kind() == types.Struct:
		values := make([]emitter.Value, 0, len(ty.Members()))
		for _, m := range ty.Members() {
			values = append(values, p.defaultValue(m.Ty))
		}
		return p.em.EmitStructConst(ty, values)
	case ty.Kind() == types.Union:
		if len(ty.Members()) == 0 {
			return p.em.EmitZeroConst(ty)
		}
		return p.defaultValue(ty.Members()[0].Ty)
	case ty.Kind() == types.Enum:
		return p.em.EmitIConst(ty, 0)
	}
	return p.em.EmitZeroConst(ty)
}
