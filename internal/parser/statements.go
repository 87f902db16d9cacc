package parser

import (
	"github.com/funvibe/qcp/internal/emitter"
	"github.com/funvibe/qcp/internal/token"
	"github.com/funvibe/qcp/internal/types"
)

// parseStmt parses one statement, including any labels in front of it.
func (p *Parser) parseStmt() {
	p.enter("parseStmt")
	defer p.exit("parseStmt")

	p.parseOptAttributeSpecifierSequence()
	p.parseOptLabelList()
	p.parseUnlabeledStmt()
}

// parseOptLabelList handles the run of `ident:`, `case expr:` and
// `default:` labels preceding a statement. The first label opens a fresh
// block so the labelled statement is independently addressable.
func (p *Parser) parseOptLabelList() {
	var labelTarget emitter.Block
	for isLabelStmtStart(p.cur.Kind, p.peek.Kind) {
		if labelTarget == nil {
			labelTarget = p.newBB()
			p.emitJumpIfNotSealed(p.state.bb, labelTarget)
			p.state.bb = labelTarget
		}
		loc := p.cur.Loc
		where := ""

		switch {
		case p.consumeOpt(token.Case):
			where = "after 'case'"
			caseExpr := p.parseConditionalExpr()
			p.optArrToPtrDecay(caseExpr)
			switch {
			case len(p.state.switches) == 0:
				p.diags.Errorf(loc.Truncate(0), "'case' statement not in switch statement")
			case caseExpr.ty.IsNil() || !caseExpr.ty.IsInteger() && !caseExpr.ty.IsEnum():
				p.diags.Errorf(caseExpr.loc, "case expression must be of integer type")
			case !caseExpr.val.IsIConst():
				p.diags.Errorf(caseExpr.loc, "case expression is not an integer constant expression")
			default:
				sw := p.state.switches[len(p.state.switches)-1]
				value := p.em.UIntegerValue(caseExpr.val)
				dup := false
				for i, v := range sw.values {
					if v == value {
						p.diags.Errorf(caseExpr.loc, "duplicate case value %d", p.em.IntegerValue(caseExpr.val))
						p.notePrevWhatHere("case", sw.locs[i])
						dup = true
						break
					}
				}
				if !dup {
					sw.values = append(sw.values, value)
					sw.locs = append(sw.locs, caseExpr.loc)
					sw.blocks = append(sw.blocks, labelTarget)
					p.em.AddSwitchCase(sw.sw, caseExpr.val, labelTarget)
				}
			}

		case p.consumeOpt(token.Default):
			where = "after 'default'"
			if len(p.state.switches) == 0 {
				p.diags.Errorf(loc.Truncate(0), "'default' statement not in switch statement")
			} else {
				sw := p.state.switches[len(p.state.switches)-1]
				if sw.hasDefault {
					p.diags.Errorf(loc.Truncate(0), "multiple default labels in one switch")
					p.notePrevWhatHere("default", sw.defaultLoc)
				} else {
					sw.hasDefault = true
					sw.defaultLoc = loc
					p.em.AddSwitchDefault(sw.sw, labelTarget)
				}
			}

		default:
			// named label
			label := p.cur.Ident
			if _, exists := p.state.labels[label]; exists {
				p.diags.Errorf(loc.Truncate(0), "redefinition of label '%s'", label)
			}
			p.state.labels[label] = labelTarget
			p.next()
		}

		p.expect(token.Colon, where)
		p.parseOptAttributeSpecifierSequence()
	}
}

// parseUnlabeledStmt dispatches on the statement introducer.
func (p *Parser) parseUnlabeledStmt() {
	switch kind := p.cur.Kind; {
	case kind == token.LBrace:
		p.varScope.Enter()
		p.tagScope.Enter()
		p.parseCompoundStmt()
		p.tagScope.Leave()
		p.varScope.Leave()

	case isSelectionStmtStart(kind):
		p.parseSelectionStmt()

	case isIterationStmtStart(kind):
		p.parseIterationStmt()

	case isJumpStmtStart(kind):
		p.parseJumpStmt()

	default:
		// expression-statement
		if kind != token.Semi {
			p.parseExpr(0)
		}
		p.expect(token.Semi, "at end of expression statement")
	}
}

// parseCompoundStmt parses `{ block-items }`; the caller manages scopes.
func (p *Parser) parseCompoundStmt() {
	p.enter("parseCompoundStmt")
	defer p.exit("parseCompoundStmt")

	p.expect(token.LBrace, "")
	for !p.curIs(token.RBrace) && !p.curIs(token.EOF) {
		p.parseOptAttributeSpecifierSequence()
		p.parseOptLabelList()
		if isDeclarationStart(p.cur.Kind) {
			p.parseDeclStmt()
		} else {
			p.parseUnlabeledStmt()
		}
	}
	p.expect(token.RBrace, "to close compound statement")
	p.diags.Unsilence()
}

// parseSelectionStmt lowers if/else and switch.
func (p *Parser) parseSelectionStmt() {
	p.enter("parseSelectionStmt")
	defer p.exit("parseSelectionStmt")

	if p.consumeOpt(token.If) {
		p.expect(token.LParen, "after 'if'")
		cond := p.parseConditionExpr()
		p.expect(token.RParen, "to close if condition")
		condEnd := p.state.bb

		then := p.newBB()
		p.state.bb = then
		p.parseStmt()
		thenEnd := p.state.bb

		var otherwise emitter.Block
		elseEnd := emitter.Block(nil)
		if p.consumeOpt(token.Else) {
			otherwise = p.newBB()
			p.state.bb = otherwise
			p.parseStmt()
			elseEnd = p.state.bb
		}

		cont := p.newBB()
		if otherwise == nil {
			otherwise = cont
		}
		p.emitBranch(condEnd, then, otherwise, cond.val)
		if elseEnd != nil {
			p.emitJumpIfNotSealed(elseEnd, cont)
		}
		p.emitJumpIfNotSealed(thenEnd, cont)
		p.state.bb = cont
		return
	}

	// switch
	p.expect(token.Switch, "")
	p.expect(token.LParen, "after 'switch'")
	cond := p.parseExpr(0)
	p.optArrToPtrDecay(cond)
	p.expect(token.RParen, "to close switch expression")

	if cond.ty.IsNil() || !cond.ty.IsInteger() && !cond.ty.IsEnum() {
		p.diags.Errorf(cond.loc, "switch condition must have integer type ('%s' invalid)", cond.ty)
		cond.val = p.em.EmitPoison()
		cond.mayBeLval = false
	}

	sw := &switchState{sw: p.em.EmitSwitch(p.state.bb, p.asRVal(cond))}
	p.state.switches = append(p.state.switches, sw)
	p.state.missingBreaks = append(p.state.missingBreaks, nil)
	p.markSealed(p.state.bb)

	p.parseStmt()

	cont := p.newBB()
	p.emitJumpIfNotSealed(p.state.bb, cont)
	if !sw.hasDefault {
		p.em.AddSwitchDefault(sw.sw, cont)
	}
	p.completeBreaks(cont)
	p.state.switches = p.state.switches[:len(p.state.switches)-1]
	p.state.bb = cont
}

// parseIterationStmt lowers while, do-while and for loops.
func (p *Parser) parseIterationStmt() {
	p.enter("parseIterationStmt")
	defer p.exit("parseIterationStmt")

	switch {
	case p.consumeOpt(token.While):
		p.parseWhileStmt()
	case p.consumeOpt(token.Do):
		p.parseDoWhileStmt()
	default:
		p.expect(token.For, "")
		p.parseForStmt()
	}
}

func (p *Parser) parseWhileStmt() {
	fromBB := p.state.bb

	p.expect(token.LParen, "after 'while'")
	header := p.newBB()
	p.state.bb = header
	cond := p.parseConditionExpr()
	p.expect(token.RParen, "to close while condition")
	condEnd := p.state.bb

	body := p.newBB()
	p.state.missingBreaks = append(p.state.missingBreaks, nil)
	p.state.continueTargets = append(p.state.continueTargets, header)

	p.state.bb = body
	p.parseStmt()
	bodyEnd := p.state.bb

	cont := p.newBB()
	p.emitJump(fromBB, header)
	p.emitJumpIfNotSealed(bodyEnd, header)
	p.emitBranch(condEnd, body, cont, cond.val)

	p.state.bb = cont
	p.completeBreaks(cont)
	p.state.continueTargets = p.state.continueTargets[:len(p.state.continueTargets)-1]
}

func (p *Parser) parseDoWhileStmt() {
	fromBB := p.state.bb

	body := p.newBB()
	header := p.newBB() // condition block; `continue` jumps here
	p.state.missingBreaks = append(p.state.missingBreaks, nil)
	p.state.continueTargets = append(p.state.continueTargets, header)

	p.state.bb = body
	p.parseStmt()
	bodyEnd := p.state.bb

	p.expect(token.While, "after do-statement body")
	p.expect(token.LParen, "after 'while'")
	p.state.bb = header
	cond := p.parseConditionExpr()
	p.expect(token.RParen, "to close while condition")
	condEnd := p.state.bb
	p.expect(token.Semi, "after do-while statement")

	cont := p.newBB()
	p.emitJump(fromBB, body)
	p.emitJumpIfNotSealed(bodyEnd, header)
	p.emitBranch(condEnd, body, cont, cond.val)

	p.state.bb = cont
	p.completeBreaks(cont)
	p.state.continueTargets = p.state.continueTargets[:len(p.state.continueTargets)-1]
}

// parseForStmt lowers `for (init; cond; update) body`; the init clause gets
// its own scope.
func (p *Parser) parseForStmt() {
	fromBB := p.state.bb
	p.varScope.Enter()
	p.tagScope.Enter()
	p.expect(token.LParen, "after 'for'")

	p.parseOptAttributeSpecifierSequence()
	if isDeclarationStart(p.cur.Kind) {
		p.parseDeclStmt()
	} else {
		if !p.curIs(token.Semi) {
			p.parseExpr(0)
		}
		p.expect(token.Semi, "after for-loop initializer")
	}

	var header, condEnd emitter.Block
	var cond *expr
	if !p.curIs(token.Semi) {
		header = p.newBB()
		p.state.bb = header
		cond = p.parseConditionExpr()
		condEnd = p.state.bb
	}
	p.expect(token.Semi, "after for-loop condition")

	var update, updateEnd emitter.Block
	if !p.curIs(token.RParen) {
		update = p.newBB()
		p.state.bb = update
		p.parseExpr(0)
		updateEnd = p.state.bb
	}
	p.expect(token.RParen, "to close for-loop clauses")

	body := p.newBB()

	loopStart := header
	if loopStart == nil {
		loopStart = body
	}
	continueTarget := update
	if continueTarget == nil {
		continueTarget = loopStart
	}
	p.state.missingBreaks = append(p.state.missingBreaks, nil)
	p.state.continueTargets = append(p.state.continueTargets, continueTarget)

	p.state.bb = body
	p.parseStmt()
	bodyEnd := p.state.bb

	cont := p.newBB()
	p.emitJump(fromBB, loopStart)
	p.emitJumpIfNotSealed(bodyEnd, continueTarget)
	if update != nil {
		p.emitJumpIfNotSealed(updateEnd, loopStart)
	}
	if cond != nil {
		p.emitBranch(condEnd, body, cont, cond.val)
	}

	p.tagScope.Leave()
	p.varScope.Leave()

	p.state.bb = cont
	p.completeBreaks(cont)
	p.state.continueTargets = p.state.continueTargets[:len(p.state.continueTargets)-1]
}

// parseJumpStmt lowers goto, continue, break and return.
func (p *Parser) parseJumpStmt() {
	p.enter("parseJumpStmt")
	defer p.exit("parseJumpStmt")

	loc := p.cur.Loc.Truncate(0)
	switch {
	case p.consumeOpt(token.Goto):
		gotoLoc := p.cur.Loc
		labelTok := p.expect(token.Ident, "after 'goto'")
		p.expect(token.Semi, "after goto statement")
		if p.isSealed(p.state.bb) {
			return
		}
		label := labelTok.Ident
		if target, ok := p.state.labels[label]; ok {
			p.em.EmitJump(p.state.bb, target)
		} else {
			p.state.pendingGotos[label] = append(p.state.pendingGotos[label],
				locatedBlock{bb: p.state.bb, loc: gotoLoc})
		}
		p.markSealed(p.state.bb)

	case p.consumeOpt(token.Continue):
		p.expect(token.Semi, "after 'continue'")
		if len(p.state.continueTargets) == 0 {
			p.diags.Errorf(loc, "'continue' statement not in loop statement")
		} else if !p.isSealed(p.state.bb) {
			p.emitJump(p.state.bb, p.state.continueTargets[len(p.state.continueTargets)-1])
		}

	case p.consumeOpt(token.Break):
		p.expect(token.Semi, "after 'break'")
		if len(p.state.missingBreaks) == 0 {
			p.diags.Errorf(loc, "'break' statement not in loop or switch statement")
		} else if !p.isSealed(p.state.bb) {
			n := len(p.state.missingBreaks) - 1
			p.state.missingBreaks[n] = append(p.state.missingBreaks[n], p.state.bb)
			p.markSealed(p.state.bb)
		}

	case p.consumeOpt(token.Return):
		var value emitter.Value
		if !p.curIs(token.Semi) {
			retExpr := p.parseExpr(0)
			p.optArrToPtrDecay(retExpr)
			if p.state.retTy.Kind() == types.Void {
				p.diags.Errorf(loc, "void function '%s' should not return a value", p.state.fnName)
			} else {
				value = p.castExpr(retExpr, p.state.retTy, false)
			}
		} else if p.state.retTy.Kind() != types.Void && !p.state.retTy.IsNil() {
			p.diags.Errorf(loc, "non-void function '%s' should return a value", p.state.fnName)
		}
		p.expect(token.Semi, "after return statement")
		if p.isSealed(p.state.bb) {
			return
		}
		p.state.returns = append(p.state.returns, outstandingReturn{bb: p.state.bb, v: value})
		p.markSealed(p.state.bb)
	}
}

// parseFunctionDefinition parses a function body: parameters become locals
// in the entry block, then the compound statement is lowered.
func (p *Parser) parseFunctionDefinition(decl *declarator) {
	p.enter("parseFunctionDefinition")
	defer p.exit("parseFunctionDefinition")

	p.varScope.Enter()
	p.tagScope.Enter()

	entry := p.em.EmitFn(p.state.fn)
	p.state.entry = entry
	p.state.bb = entry
	p.state.unsealed = append(p.state.unsealed, locatedBlock{bb: entry, loc: p.cur.Loc})

	params := decl.ty.Params()
	for i, paramTy := range params {
		if i >= len(decl.paramNames) {
			break
		}
		name := decl.paramNames[i]
		val := p.em.Param(p.state.fn, i)
		v := p.em.EmitLocalVar(p.state.fn, entry, paramTy, name.ident, false)
		p.em.EmitStore(entry, paramTy, val, v)
		if !name.ident.IsEmpty() {
			p.varScope.Insert(name.ident, ScopeInfo{Ty: paramTy, Loc: name.loc, Val: v, HasDefOrInit: true})
		}
	}

	p.parseCompoundStmt()
	for p.consumeOpt(token.RBrace) {
		p.diags.Errorf(p.cur.Loc, "extraneous closing brace ('}')")
	}

	p.tagScope.Leave()
	p.varScope.Leave()
}
