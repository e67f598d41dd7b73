package operation

import "time"

func init() {
	Register(TypeTest, func(id int64) Operation { return &Test{Base: NewBase(id, time.Minute)} })
}

// Test is a minimal operation used only by internal/engine's scheduling
// tests, to exercise exclusivity/dependency/obstruction wiring without a
// full CreateTable (original_source OPERATION_TEST tag, SPEC_FULL.md §3).
// It is not part of the public RPC command-code set.
type Test struct {
	Base

	Exclusivity string
	Dependency  string
	Obstruction string
}

func NewTest(id int64) *Test {
	t := &Test{Base: NewBase(id, time.Minute)}
	return t
}

func (t *Test) EntityType() EntityType { return TypeTest }
func (t *Test) Name() string           { return "Test" }
func (t *Test) Label() string          { return "Test" }

func (t *Test) WithExclusivity(x string) *Test {
	t.Exclusivities().Add(x)
	t.Exclusivity = x
	return t
}

func (t *Test) WithDependency(d string) *Test {
	t.Dependencies().Add(d)
	t.Dependency = d
	return t
}

func (t *Test) WithObstruction(o string) *Test {
	t.Obstructions().Add(o)
	t.Obstruction = o
	return t
}

func (t *Test) Execute(ctx Context) error {
	t.CompleteOK()
	return nil
}

func (t *Test) EncodeState() []byte {
	buf := make([]byte, stringLen(t.Exclusivity)+stringLen(t.Dependency)+stringLen(t.Obstruction))
	n := putString(buf, t.Exclusivity)
	n += putString(buf[n:], t.Dependency)
	putString(buf[n:], t.Obstruction)
	return buf
}

func (t *Test) DecodeState(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	x, n, err := getString(buf)
	if err != nil {
		return err
	}
	d, n2, err := getString(buf[n:])
	if err != nil {
		return err
	}
	o, _, err := getString(buf[n+n2:])
	if err != nil {
		return err
	}
	t.Exclusivity, t.Dependency, t.Obstruction = x, d, o
	if x != "" {
		t.Exclusivities().Add(x)
	}
	if d != "" {
		t.Dependencies().Add(d)
	}
	if o != "" {
		t.Obstructions().Add(o)
	}
	return nil
}
