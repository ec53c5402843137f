package schema

import "encoding/json"

// Logic operator names.
const (
	OpIf      = "if"
	OpAnd     = "and"
	OpOr      = "or"
	OpNot     = "not"
	OpFor     = "for"
	OpSet     = "set"
	OpLet     = "let"
	OpReduce  = "reduce"
	OpWhile   = "while"
	OpCall    = "call"
	OpEmit    = "emit"
	OpRecurse = "recurse"
)

// KnownLogicOps lists every operator the editor understands.
var KnownLogicOps = []string{OpIf, OpAnd, OpOr, OpNot, OpFor, OpSet, OpLet, OpReduce, OpWhile, OpCall, OpEmit, OpRecurse}

// LogicBlock evaluates an operator and exposes named outputs.
type LogicBlock struct {
	Name    string        `json:"name,omitempty"`
	Op      LogicOp       `json:"-"`
	Outputs []LogicOutput `json:"outputs,omitempty"`
	RunIf   any           `json:"run_if,omitempty"`
	OnError string        `json:"on_error,omitempty"`
}

func (*LogicBlock) Kind() BlockType         { return BlockTypeLogic }
func (b *LogicBlock) Accept(v BlockVisitor) { v.VisitLogic(b) }

// OpName returns the operator name, "if" when no operator is set.
func (b *LogicBlock) OpName() string {
	if b.Op == nil {
		return OpIf
	}
	return b.Op.OpName()
}

type logicFields LogicBlock

func (b *LogicBlock) MarshalJSON() ([]byte, error) {
	op := b.Op
	if op == nil {
		op = &CondOp{Op: OpIf}
	}
	return mergeObjects(op, (*logicFields)(b), map[string]string{"op": op.OpName()})
}

func (b *LogicBlock) UnmarshalJSON(data []byte) error {
	var head struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if err := json.Unmarshal(data, (*logicFields)(b)); err != nil {
		return err
	}
	op := NewLogicOp(head.Op)
	if err := json.Unmarshal(data, op); err != nil {
		return err
	}
	b.Op = op
	return nil
}

// LogicOutput exposes part of the operator result under a name.
type LogicOutput struct {
	Name     string `json:"name"`
	From     string `json:"from,omitempty"`
	Test     any    `json:"test,omitempty"`
	Source   string `json:"source,omitempty"`
	JoinWith string `json:"join_with,omitempty"`
	Limit    *int   `json:"limit,omitempty"`
	Offset   *int   `json:"offset,omitempty"`
}

// UnmarshalJSON accepts either a bare output name or a full object.
func (o *LogicOutput) UnmarshalJSON(data []byte) error {
	if name, ok := bareName(data); ok {
		*o = LogicOutput{Name: name}
		return nil
	}
	type plain LogicOutput
	return json.Unmarshal(data, (*plain)(o))
}

// LogicOp is the closed set of logic operators. Adding an operator means
// adding a method to LogicOpVisitor.
type LogicOp interface {
	OpName() string
	Accept(v LogicOpVisitor)
}

// LogicOpVisitor dispatches over the logic operators.
type LogicOpVisitor interface {
	VisitCond(op *CondOp)
	VisitFor(op *ForOp)
	VisitSet(op *SetOp)
	VisitLet(op *LetOp)
	VisitCall(op *CallOp)
	VisitReduce(op *ReduceOp)
	VisitWhile(op *WhileOp)
	VisitEmit(op *EmitOp)
	VisitRecurse(op *RecurseOp)
}

// NewLogicOp returns an empty operator value for name. Unrecognized names
// share the condition shape of "if".
func NewLogicOp(name string) LogicOp {
	switch name {
	case OpFor:
		return &ForOp{}
	case OpSet:
		return &SetOp{}
	case OpLet:
		return &LetOp{}
	case OpCall:
		return &CallOp{}
	case OpReduce:
		return &ReduceOp{}
	case OpWhile:
		return &WhileOp{}
	case OpEmit:
		return &EmitOp{}
	case OpRecurse:
		return &RecurseOp{}
	case "":
		return &CondOp{Op: OpIf}
	default:
		return &CondOp{Op: name}
	}
}

// CondOp covers if, and, or, not and any operator name the editor does not
// recognize.
type CondOp struct {
	Op       string `json:"-"`
	Cond     any    `json:"cond,omitempty"`
	Then     any    `json:"then,omitempty"`
	Else     any    `json:"else,omitempty"`
	Operands any    `json:"operands,omitempty"`
}

func (o *CondOp) OpName() string {
	if o.Op == "" {
		return OpIf
	}
	return o.Op
}
func (o *CondOp) Accept(v LogicOpVisitor) { v.VisitCond(o) }

// ForOp iterates a list, binding each element to Var (default "item").
type ForOp struct {
	List         any    `json:"list,omitempty"`
	Parse        string `json:"parse,omitempty"`
	RegexPattern string `json:"regex_pattern,omitempty"`
	Var          string `json:"var,omitempty"`
	DropEmpty    *bool  `json:"drop_empty,omitempty"`
	Where        any    `json:"where,omitempty"`
	Map          any    `json:"map,omitempty"`
}

func (*ForOp) OpName() string             { return OpFor }
func (o *ForOp) Accept(v LogicOpVisitor) { v.VisitFor(o) }

// LoopVar returns the bound loop variable name.
func (o *ForOp) LoopVar() string {
	if o.Var == "" {
		return "item"
	}
	return o.Var
}

// SetOp assigns Value to a global variable.
type SetOp struct {
	Var   string `json:"var,omitempty"`
	Value any    `json:"value,omitempty"`
}

func (*SetOp) OpName() string             { return OpSet }
func (o *SetOp) Accept(v LogicOpVisitor) { v.VisitSet(o) }

// LetOp evaluates Body with local Bindings.
type LetOp struct {
	Bindings any `json:"bindings,omitempty"`
	Body     any `json:"body,omitempty"`
}

func (*LetOp) OpName() string             { return OpLet }
func (o *LetOp) Accept(v LogicOpVisitor) { v.VisitLet(o) }

// CallOp invokes a named function from the document's functions section.
type CallOp struct {
	Function any      `json:"function,omitempty"`
	With     any      `json:"with,omitempty"`
	Returns  []string `json:"returns,omitempty"`
}

func (*CallOp) OpName() string             { return OpCall }
func (o *CallOp) Accept(v LogicOpVisitor) { v.VisitCall(o) }

// ReduceOp folds List into Accumulator, binding each element to Var.
type ReduceOp struct {
	List        any    `json:"list,omitempty"`
	Value       any    `json:"value,omitempty"`
	Var         string `json:"var,omitempty"`
	Accumulator string `json:"accumulator,omitempty"`
	Body        any    `json:"body,omitempty"`
}

func (*ReduceOp) OpName() string             { return OpReduce }
func (o *ReduceOp) Accept(v LogicOpVisitor) { v.VisitReduce(o) }

// WhileOp runs Init once, then Step while Cond holds.
type WhileOp struct {
	Init   any `json:"init,omitempty"`
	Cond   any `json:"cond,omitempty"`
	Step   any `json:"step,omitempty"`
	Budget any `json:"budget,omitempty"`
}

func (*WhileOp) OpName() string             { return OpWhile }
func (o *WhileOp) Accept(v LogicOpVisitor) { v.VisitWhile(o) }

// EmitOp publishes Value to the runtime's output stream. It also carries the
// condition fields of "if", which are the ones scanned for references.
type EmitOp struct {
	Value    any `json:"value,omitempty"`
	Cond     any `json:"cond,omitempty"`
	Then     any `json:"then,omitempty"`
	Else     any `json:"else,omitempty"`
	Operands any `json:"operands,omitempty"`
}

func (*EmitOp) OpName() string             { return OpEmit }
func (o *EmitOp) Accept(v LogicOpVisitor) { v.VisitEmit(o) }

// RecurseOp defines an inline recursive function and calls it With args.
// Function is an object with base_case and body.
type RecurseOp struct {
	Function any `json:"function,omitempty"`
	With     any `json:"with,omitempty"`
	Budget   any `json:"budget,omitempty"`
}

func (*RecurseOp) OpName() string             { return OpRecurse }
func (o *RecurseOp) Accept(v LogicOpVisitor) { v.VisitRecurse(o) }
