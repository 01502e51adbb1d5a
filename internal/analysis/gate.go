package analysis

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"stratbench/strategy"
)

// ViolationKind 区分拒绝原因，API 层据此向用户解释。
type ViolationKind string

const (
	ViolationSyntax           ViolationKind = "syntax"
	ViolationForbiddenImport  ViolationKind = "forbidden_import"
	ViolationForbiddenIdent   ViolationKind = "forbidden_identifier"
	ViolationForbiddenConstr  ViolationKind = "forbidden_construct"
	ViolationMissingInterface ViolationKind = "missing_interface"
)

// Violation 记录一次违规：类型、违规符号与源码位置。
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Symbol   string        `json:"symbol"`
	Position string        `json:"position,omitempty"`
}

func (v Violation) String() string {
	if v.Position == "" {
		return fmt.Sprintf("%s: %s", v.Kind, v.Symbol)
	}
	return fmt.Sprintf("%s: %s (%s)", v.Kind, v.Symbol, v.Position)
}

// Metadata 是静态提取的策略元信息。宿主进程在执行前需要 universe
// 做数据准备，而策略代码在审查阶段绝不会被执行，所以只能从 AST 读。
// 无法静态解析的字段为空，由调用方回落到请求里的 hint。
type Metadata struct {
	Universe     []string                 `json:"universe,omitempty"`
	Indicators   []strategy.IndicatorSpec `json:"indicators,omitempty"`
	CadenceEvery int                      `json:"cadence_every,omitempty"`
}

// Verdict 是一次提交的终审结果，产生后不再变化。
type Verdict struct {
	Accepted   bool        `json:"accepted"`
	Violations []Violation `json:"violations,omitempty"`
	Meta       Metadata    `json:"meta"`
}

// Source 是提交的策略源码，分析期间不被修改。
type Source struct {
	Name string
	Code string
}

// Gate 对提交的策略做纯静态审查：语法、import 白名单、
// 标识符黑名单、结构化能力检查。不做任何 I/O，不执行代码。
type Gate struct {
	policies *PolicyStore
}

func NewGate(policies *PolicyStore) *Gate {
	return &Gate{policies: policies}
}

// Analyze 遍历整棵语法树并收集全部违规（语法错误除外，语法错误
// 本身即终审结论）。任何违规都会导致 Accepted=false。
func (g *Gate) Analyze(src Source) Verdict {
	policy := DefaultPolicy()
	if g != nil && g.policies != nil {
		policy = g.policies.Current()
	}
	name := src.Name
	if name == "" {
		name = "strategy.go"
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src.Code, parser.AllErrors)
	if err != nil {
		return Verdict{
			Accepted:   false,
			Violations: []Violation{{Kind: ViolationSyntax, Symbol: firstLine(err.Error())}},
		}
	}

	var violations []Violation
	record := func(kind ViolationKind, symbol string, pos token.Pos) {
		violations = append(violations, Violation{
			Kind:     kind,
			Symbol:   symbol,
			Position: fset.Position(pos).String(),
		})
	}

	for _, imp := range file.Imports {
		path, perr := strconv.Unquote(imp.Path.Value)
		if perr != nil {
			path = imp.Path.Value
		}
		if !policy.allowsImport(path) {
			record(ViolationForbiddenImport, path, imp.Pos())
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.GoStmt:
			record(ViolationForbiddenConstr, "go statement", node.Pos())
		case *ast.SelectStmt:
			record(ViolationForbiddenConstr, "select statement", node.Pos())
		case *ast.ChanType:
			record(ViolationForbiddenConstr, "channel type", node.Pos())
		case *ast.SelectorExpr:
			if ident, ok := node.X.(*ast.Ident); ok {
				full := ident.Name + "." + node.Sel.Name
				if policy.denies(full) {
					record(ViolationForbiddenIdent, full, node.Pos())
				}
			}
		case *ast.Ident:
			if policy.denies(node.Name) {
				record(ViolationForbiddenIdent, node.Name, node.Pos())
			}
		}
		return true
	})

	decls := topLevelFuncs(file)
	if _, ok := decls["Universe"]; !ok {
		violations = append(violations, Violation{Kind: ViolationMissingInterface, Symbol: "Universe"})
	}
	if _, ok := decls["OnData"]; !ok {
		violations = append(violations, Violation{Kind: ViolationMissingInterface, Symbol: "OnData"})
	}

	meta := extractMetadata(decls)
	return Verdict{
		Accepted:   len(violations) == 0,
		Violations: violations,
		Meta:       meta,
	}
}

func topLevelFuncs(file *ast.File) map[string]*ast.FuncDecl {
	out := make(map[string]*ast.FuncDecl)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		out[fn.Name.Name] = fn
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// extractMetadata 从 Universe/Indicators/Cadence 的 return 字面量中
// 静态提取元信息。策略把这些写成常量字面量时（绝大多数情况），
// 宿主无需执行代码即可得到数据依赖。
func extractMetadata(decls map[string]*ast.FuncDecl) Metadata {
	var meta Metadata
	if fn, ok := decls["Universe"]; ok {
		meta.Universe = extractStringSlice(fn)
	}
	if fn, ok := decls["Indicators"]; ok {
		meta.Indicators = extractIndicators(fn)
	}
	if fn, ok := decls["Cadence"]; ok {
		meta.CadenceEvery = extractCadence(fn)
	}
	return meta
}

func soleReturn(fn *ast.FuncDecl) ast.Expr {
	if fn.Body == nil {
		return nil
	}
	for _, stmt := range fn.Body.List {
		if ret, ok := stmt.(*ast.ReturnStmt); ok && len(ret.Results) == 1 {
			return ret.Results[0]
		}
	}
	return nil
}

func extractStringSlice(fn *ast.FuncDecl) []string {
	lit, ok := soleReturn(fn).(*ast.CompositeLit)
	if !ok {
		return nil
	}
	var out []string
	for _, elt := range lit.Elts {
		basic, ok := elt.(*ast.BasicLit)
		if !ok || basic.Kind != token.STRING {
			return nil
		}
		s, err := strconv.Unquote(basic.Value)
		if err != nil {
			return nil
		}
		out = append(out, s)
	}
	return out
}

func extractIndicators(fn *ast.FuncDecl) []strategy.IndicatorSpec {
	lit, ok := soleReturn(fn).(*ast.CompositeLit)
	if !ok {
		return nil
	}
	var out []strategy.IndicatorSpec
	for _, elt := range lit.Elts {
		call, ok := elt.(*ast.CallExpr)
		if !ok || len(call.Args) != 1 {
			return nil
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return nil
		}
		period, ok := intLiteral(call.Args[0])
		if !ok {
			return nil
		}
		switch sel.Sel.Name {
		case "SMA":
			out = append(out, strategy.SMA(period))
		case "EMA":
			out = append(out, strategy.EMA(period))
		case "RSI":
			out = append(out, strategy.RSI(period))
		default:
			return nil
		}
	}
	return out
}

func extractCadence(fn *ast.FuncDecl) int {
	expr := soleReturn(fn)
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return 0
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return 0
	}
	switch sel.Sel.Name {
	case "EveryBar":
		return 1
	case "EveryN":
		if len(call.Args) == 1 {
			if n, ok := intLiteral(call.Args[0]); ok {
				return n
			}
		}
	}
	return 0
}

func intLiteral(expr ast.Expr) (int, bool) {
	basic, ok := expr.(*ast.BasicLit)
	if !ok || basic.Kind != token.INT {
		return 0, false
	}
	n, err := strconv.Atoi(basic.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}
