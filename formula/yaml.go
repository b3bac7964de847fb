package formula

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ToYAML renders an expression tree as YAML for debug logging.
func ToYAML(e Expr) string {
	d, err := yaml.Marshal(toNode(e))
	if err != nil {
		return fmt.Sprintf("yaml: %v", err)
	}
	return string(d)
}

func toNode(e Expr) any {
	switch e := e.(type) {
	case Var:
		return map[string]any{"var": e.Name, "sort": e.S.String()}
	case IntLit, RealLit, BoolLit:
		return e.String()
	case Binary:
		return map[string]any{"op": e.Op.String(), "lhs": toNode(e.X), "rhs": toNode(e.Y)}
	case Neg:
		return map[string]any{"neg": toNode(e.X)}
	case Not:
		return map[string]any{"not": toNode(e.X)}
	case Compare:
		return map[string]any{"cmp": e.Op.String(), "lhs": toNode(e.X), "rhs": toNode(e.Y)}
	case And:
		return map[string]any{"and": toNodes(e.Xs)}
	case Or:
		return map[string]any{"or": toNodes(e.Xs)}
	case Ite:
		return map[string]any{"if": toNode(e.Cond), "then": toNode(e.Then), "else": toNode(e.Else)}
	case App:
		return map[string]any{"apply": e.Fn, "args": toNodes(e.Args), "out": e.Out.String()}
	case Tuple:
		return map[string]any{"tuple": toNodes(e.Elems)}
	case At:
		return map[string]any{"at": e.Index, "tuple": toNode(e.Tup)}
	case Cast:
		return map[string]any{"cast": e.To.String(), "arg": toNode(e.X)}
	}
	return nil
}

func toNodes(xs []Expr) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = toNode(x)
	}
	return out
}
