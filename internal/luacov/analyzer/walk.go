package analyzer

import (
	"fmt"
	"time"

	"github.com/covstar/luacov/internal/luacov/luasyntax"
	"github.com/covstar/luacov/internal/luacov/source"
)

// budget bounds the non-recursive walk: a hard cap on nodes processed
// and a wall-clock cap, beyond which the analyzer returns a partial
// code map and signals AnalysisTruncated. deadline is the zero time when no time
// budget was configured (analyzer.time_budget_ms <= 0).
type budget struct {
	nodesLeft int
	deadline  time.Time
	truncated bool

	checkEvery int
	sinceCheck int
}

func (b *budget) spend(n int) bool {
	if b.truncated {
		return false
	}
	if b.nodesLeft <= 0 {
		b.truncated = true
		return false
	}
	b.nodesLeft -= n

	if !b.deadline.IsZero() {
		b.sinceCheck += n
		if b.sinceCheck >= b.checkEvery {
			b.sinceCheck = 0
			if time.Now().After(b.deadline) {
				b.truncated = true
				return false
			}
		}
	}
	return true
}

// walkState accumulates enumeration results across the whole file.
// The traversal itself uses an explicit stack of frames rather than
// Go call recursion, so arbitrarily deep block nesting never grows
// the Go stack, only this slice.
type walkState struct {
	bud *budget
	buf *source.Buffer

	execStartLines map[int]bool
	functions      []FunctionInfo
	blocks         []BlockInfo
	conditions     []ConditionInfo

	blockSeq int
	condSeq  int
}

func (w *walkState) lineOf(offset int) int { return w.buf.PositionToLine(offset) }

type frame struct {
	block         *luasyntax.Block
	parentBlockID string
	funcDepth     int
}

func newWalkState(buf *source.Buffer, nodeBudget int, timeBudget time.Duration) *walkState {
	b := &budget{nodesLeft: nodeBudget, checkEvery: 256}
	if timeBudget > 0 {
		b.deadline = time.Now().Add(timeBudget)
	}
	return &walkState{
		bud:            b,
		buf:            buf,
		execStartLines: map[int]bool{},
	}
}

func (w *walkState) newBlockID(kind string) string {
	w.blockSeq++
	return fmt.Sprintf("%s#%d", kind, w.blockSeq)
}

func (w *walkState) newCondID() string {
	w.condSeq++
	return fmt.Sprintf("c%d", w.condSeq)
}

func (w *walkState) addBlock(b BlockInfo) {
	w.blocks = append(w.blocks, b)
	if b.ParentID != "" {
		w.attachChild(b.ParentID, b.ID)
	}
}

func (w *walkState) attachChild(parentID, childID string) {
	for i := range w.blocks {
		if w.blocks[i].ID == parentID {
			w.blocks[i].Children = append(w.blocks[i].Children, childID)
			return
		}
	}
}

func (w *walkState) attachCondition(blockID, condID string) {
	for i := range w.blocks {
		if w.blocks[i].ID == blockID {
			w.blocks[i].Conditions = append(w.blocks[i].Conditions, condID)
			return
		}
	}
}

// walkFile runs the full enumeration over a parsed file and returns
// the accumulated results plus whether the budget was exhausted.
func walkFile(buf *source.Buffer, file *luasyntax.File, nodeBudget int, timeBudget time.Duration) *walkState {
	w := newWalkState(buf, nodeBudget, timeBudget)

	rootID := "root"
	w.blocks = append(w.blocks, BlockInfo{ID: rootID, Kind: "root", ParentID: ""})

	stack := []frame{{block: file.Body, parentBlockID: rootID, funcDepth: 0}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if fr.block == nil {
			continue
		}
		for _, s := range fr.block.Stmts {
			if !w.bud.spend(1) {
				return w
			}
			next := w.visitStmt(s, fr.parentBlockID, fr.funcDepth)
			stack = append(stack, next...)
		}
	}
	return w
}

// visitStmt processes one statement: it records executable start
// lines, registers functions/blocks/conditions it directly introduces,
// and returns any nested blocks that must be pushed onto the worklist.
func (w *walkState) visitStmt(s luasyntax.Stmt, parentBlockID string, funcDepth int) []frame {
	var pending []frame

	switch st := s.(type) {
	case *luasyntax.LocalStmt:
		if len(st.Values) > 0 {
			w.execStartLines[w.startLineOf(st)] = true
		}
		w.registerBoundFunctions(st.Names, st.Values, FuncLocal, parentBlockID, funcDepth, &pending)

	case *luasyntax.AssignStmt:
		startLine := w.startLineOf(st)
		w.execStartLines[startLine] = true
		names := make([]*luasyntax.Ident, 0, len(st.Targets))
		for _, t := range st.Targets {
			if id, ok := t.(*luasyntax.Ident); ok {
				names = append(names, id)
			} else {
				names = append(names, nil)
			}
		}
		w.registerBoundFunctionsFromTargets(names, st.Values, FuncGlobal, parentBlockID, funcDepth, &pending)

	case *luasyntax.CallStmt:
		w.execStartLines[w.startLineOf(st)] = true
		w.collectAnonymousFuncs(st.Call, parentBlockID, funcDepth, &pending)

	case *luasyntax.ReturnStmt:
		if !isBareIdentReturn(st) {
			w.execStartLines[w.startLineOf(st)] = true
		}
		for _, v := range st.Values {
			w.collectAnonymousFuncs(v, parentBlockID, funcDepth, &pending)
		}

	case *luasyntax.DoStmt:
		id := w.newBlockID("do_block")
		w.addBlock(BlockInfo{ID: id, Kind: "do_block", StartLine: st.DoLine, EndLine: st.EndLine, ParentID: parentBlockID})
		pending = append(pending, frame{block: st.Body, parentBlockID: id, funcDepth: funcDepth})

	case *luasyntax.WhileStmt:
		whileID := w.newBlockID("while")
		w.execStartLines[st.WhileLine] = true
		w.addBlock(BlockInfo{ID: whileID, Kind: "while", StartLine: st.WhileLine, EndLine: st.EndLine, ParentID: parentBlockID})
		w.attachCondition(whileID, w.decomposeCondition(st.Cond, whileID))
		bodyID := w.newBlockID("while_body")
		w.addBlock(BlockInfo{ID: bodyID, Kind: "while_body", StartLine: st.DoLine, EndLine: st.EndLine, ParentID: whileID})
		pending = append(pending, frame{block: st.Body, parentBlockID: bodyID, funcDepth: funcDepth})

	case *luasyntax.RepeatStmt:
		repeatID := w.newBlockID("repeat")
		w.execStartLines[st.RepeatLine] = true
		w.addBlock(BlockInfo{ID: repeatID, Kind: "repeat", StartLine: st.RepeatLine, EndLine: st.UntilLine, ParentID: parentBlockID})
		w.attachCondition(repeatID, w.decomposeCondition(st.Cond, repeatID))
		bodyID := w.newBlockID("repeat_body")
		w.addBlock(BlockInfo{ID: bodyID, Kind: "repeat_body", StartLine: st.RepeatLine, EndLine: st.UntilLine, ParentID: repeatID})
		pending = append(pending, frame{block: st.Body, parentBlockID: bodyID, funcDepth: funcDepth})

	case *luasyntax.IfStmt:
		ifID := w.newBlockID("if")
		w.addBlock(BlockInfo{ID: ifID, Kind: "if", StartLine: st.Clauses[0].KeywordLine, EndLine: st.EndLine, ParentID: parentBlockID})
		var branchIDs []string
		for _, c := range st.Clauses {
			w.execStartLines[c.KeywordLine] = true
			kind := "then_block"
			if c.Cond == nil {
				kind = "else_block"
			} else {
				w.attachCondition(ifID, w.decomposeCondition(c.Cond, ifID))
			}
			bID := w.newBlockID(kind)
			endLine := st.EndLine
			w.addBlock(BlockInfo{ID: bID, Kind: kind, StartLine: c.KeywordLine, EndLine: endLine, ParentID: ifID})
			branchIDs = append(branchIDs, bID)
			pending = append(pending, frame{block: c.Body, parentBlockID: bID, funcDepth: funcDepth})
		}
		for i := range w.blocks {
			if w.blocks[i].ID == ifID {
				w.blocks[i].Branches = branchIDs
			}
		}

	case *luasyntax.NumForStmt:
		forID := w.newBlockID("for_num")
		w.execStartLines[st.ForLine] = true
		w.addBlock(BlockInfo{ID: forID, Kind: "for_num", StartLine: st.ForLine, EndLine: st.EndLine, ParentID: parentBlockID})
		bodyID := w.newBlockID("for_body")
		w.addBlock(BlockInfo{ID: bodyID, Kind: "for_body", StartLine: st.DoLine, EndLine: st.EndLine, ParentID: forID})
		pending = append(pending, frame{block: st.Body, parentBlockID: bodyID, funcDepth: funcDepth})

	case *luasyntax.GenForStmt:
		forID := w.newBlockID("for_in")
		w.execStartLines[st.ForLine] = true
		w.addBlock(BlockInfo{ID: forID, Kind: "for_in", StartLine: st.ForLine, EndLine: st.EndLine, ParentID: parentBlockID})
		bodyID := w.newBlockID("for_body")
		w.addBlock(BlockInfo{ID: bodyID, Kind: "for_body", StartLine: st.DoLine, EndLine: st.EndLine, ParentID: forID})
		pending = append(pending, frame{block: st.Body, parentBlockID: bodyID, funcDepth: funcDepth})

	case *luasyntax.FuncStmt:
		kind := FuncGlobal
		switch st.Kind {
		case luasyntax.FuncLocal:
			kind = FuncLocal
		case luasyntax.FuncGlobal:
			kind = FuncGlobal
		}
		if st.IsMethod {
			kind = FuncMethod
		}
		w.execStartLines[st.Func.FunctionLine] = true
		funcBlockID := w.registerFunction(joinName(st.NameParts, st.IsMethod), st.Func, kind, funcDepth, parentBlockID)
		pending = append(pending, frame{block: st.Func.Body, parentBlockID: funcBlockID, funcDepth: funcDepth + 1})
	}

	return pending
}

func joinName(parts []string, isMethod bool) string {
	if len(parts) == 0 {
		return ""
	}
	name := parts[0]
	last := len(parts) - 1
	for i := 1; i <= last; i++ {
		sep := "."
		if isMethod && i == last {
			sep = ":"
		}
		name += sep + parts[i]
	}
	return name
}

func isBareIdentReturn(st *luasyntax.ReturnStmt) bool {
	if len(st.Values) != 1 {
		return false
	}
	_, ok := st.Values[0].(*luasyntax.Ident)
	return ok
}

func (w *walkState) startLineOf(n luasyntax.Node) int {
	start, _ := n.Span()
	return w.lineOf(start)
}

// registerFunction records a FunctionInfo and the synthetic "function"
// block wrapping its body, applying the CLOSURE override when the
// function is nested and captures a free variable.
func (w *walkState) registerFunction(name string, fn *luasyntax.FuncExpr, kind FuncKind, funcDepth int, parentBlockID string) string {
	if funcDepth > 0 && len(freeVariables(fn)) > 0 {
		kind = FuncClosure
	}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name
	}
	id := fmt.Sprintf("%s:%d-%d", name, fn.FunctionLine, fn.EndLine)
	w.functions = append(w.functions, FunctionInfo{
		ID: id, Name: name, StartLine: fn.FunctionLine, EndLine: fn.EndLine,
		Kind: kind, Params: params, IsMethod: kind == FuncMethod,
	})
	blockID := w.newBlockID("function")
	w.addBlock(BlockInfo{ID: blockID, Kind: "function", StartLine: fn.FunctionLine, EndLine: fn.EndLine, ParentID: parentBlockID})
	return blockID
}

// registerBoundFunctions handles "local a, b = function() end, 1".
func (w *walkState) registerBoundFunctions(names []*luasyntax.Ident, values []luasyntax.Expr, kind FuncKind, parentBlockID string, funcDepth int, pending *[]frame) {
	for i, v := range values {
		fe, ok := v.(*luasyntax.FuncExpr)
		if !ok {
			w.collectAnonymousFuncs(v, parentBlockID, funcDepth, pending)
			continue
		}
		name := ""
		if i < len(names) {
			name = names[i].Name
		}
		w.execStartLines[fe.FunctionLine] = true
		blockID := w.registerFunction(name, fe, kind, funcDepth, parentBlockID)
		*pending = append(*pending, frame{block: fe.Body, parentBlockID: blockID, funcDepth: funcDepth + 1})
	}
}

func (w *walkState) registerBoundFunctionsFromTargets(targets []*luasyntax.Ident, values []luasyntax.Expr, kind FuncKind, parentBlockID string, funcDepth int, pending *[]frame) {
	for i, v := range values {
		fe, ok := v.(*luasyntax.FuncExpr)
		if !ok {
			w.collectAnonymousFuncs(v, parentBlockID, funcDepth, pending)
			continue
		}
		name := ""
		effectiveKind := FuncAnonymous
		if i < len(targets) && targets[i] != nil {
			name = targets[i].Name
			effectiveKind = kind
		}
		w.execStartLines[fe.FunctionLine] = true
		blockID := w.registerFunction(name, fe, effectiveKind, funcDepth, parentBlockID)
		*pending = append(*pending, frame{block: fe.Body, parentBlockID: blockID, funcDepth: funcDepth + 1})
	}
}

// collectAnonymousFuncs finds FuncExpr literals embedded in an
// arbitrary expression (call arguments, table fields) that are not
// already accounted for by a direct local/assignment binding, and
// registers each as ANONYMOUS (or CLOSURE, if it captures and is
// nested). It does not descend into a found FuncExpr's own body;
// that body becomes its own frame on the pending worklist instead.
func (w *walkState) collectAnonymousFuncs(e luasyntax.Expr, parentBlockID string, funcDepth int, pending *[]frame) {
	if e == nil {
		return
	}
	switch ex := e.(type) {
	case *luasyntax.FuncExpr:
		w.execStartLines[ex.FunctionLine] = true
		blockID := w.registerFunction("", ex, FuncAnonymous, funcDepth, parentBlockID)
		*pending = append(*pending, frame{block: ex.Body, parentBlockID: blockID, funcDepth: funcDepth + 1})
	case *luasyntax.BinaryExpr:
		w.collectAnonymousFuncs(ex.X, parentBlockID, funcDepth, pending)
		w.collectAnonymousFuncs(ex.Y, parentBlockID, funcDepth, pending)
	case *luasyntax.UnaryExpr:
		w.collectAnonymousFuncs(ex.X, parentBlockID, funcDepth, pending)
	case *luasyntax.ParenExpr:
		w.collectAnonymousFuncs(ex.X, parentBlockID, funcDepth, pending)
	case *luasyntax.IndexExpr:
		w.collectAnonymousFuncs(ex.X, parentBlockID, funcDepth, pending)
		w.collectAnonymousFuncs(ex.Index, parentBlockID, funcDepth, pending)
	case *luasyntax.FieldExpr:
		w.collectAnonymousFuncs(ex.X, parentBlockID, funcDepth, pending)
	case *luasyntax.CallExpr:
		w.collectAnonymousFuncs(ex.Fn, parentBlockID, funcDepth, pending)
		for _, a := range ex.Args {
			w.collectAnonymousFuncs(a, parentBlockID, funcDepth, pending)
		}
	case *luasyntax.TableExpr:
		for _, f := range ex.Fields {
			if f.Key != nil {
				w.collectAnonymousFuncs(f.Key, parentBlockID, funcDepth, pending)
			}
			w.collectAnonymousFuncs(f.Value, parentBlockID, funcDepth, pending)
		}
	}
}

// decomposeCondition recursively breaks a boolean test expression into
// ConditionInfo records: compound and/or/not
// conditions list their sub-condition ids in Components.
func (w *walkState) decomposeCondition(e luasyntax.Expr, parentBlockID string) string {
	id := w.newCondID()
	startLine := w.startLineOf(e)

	switch ex := e.(type) {
	case *luasyntax.BinaryExpr:
		if ex.Op == luasyntax.AND || ex.Op == luasyntax.OR {
			op := "and"
			if ex.Op == luasyntax.OR {
				op = "or"
			}
			leftID := w.decomposeCondition(ex.X, parentBlockID)
			rightID := w.decomposeCondition(ex.Y, parentBlockID)
			w.conditions = append(w.conditions, ConditionInfo{
				ID: id, Kind: op, StartLine: startLine, EndLine: startLine, ParentID: parentBlockID,
				IsCompound: true, Operator: op, Components: []string{leftID, rightID},
			})
			return id
		}
	case *luasyntax.UnaryExpr:
		if ex.Op == luasyntax.NOT {
			innerID := w.decomposeCondition(ex.X, parentBlockID)
			w.conditions = append(w.conditions, ConditionInfo{
				ID: id, Kind: "not", StartLine: startLine, EndLine: startLine, ParentID: parentBlockID,
				IsCompound: true, Operator: "not", Components: []string{innerID},
			})
			return id
		}
	}

	start, end := e.Span()
	w.conditions = append(w.conditions, ConditionInfo{
		ID: id, Kind: "test", StartLine: startLine, EndLine: startLine, ParentID: parentBlockID,
		ByteStart: start, ByteEnd: end,
	})
	return id
}
