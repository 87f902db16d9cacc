package types

import (
	"testing"

	"github.com/funvibe/qcp/internal/strpool"
	"github.com/funvibe/qcp/internal/token"
)

func newFactory() *Factory {
	return NewFactory(nil, DefaultTarget)
}

func TestInterning(t *testing.T) {
	f := newFactory()

	a := f.Harden(f.PtrTo(f.IntTy(false)), nil)
	f.ClearFragments()
	b := f.Harden(f.PtrTo(f.IntTy(false)), nil)
	f.ClearFragments()

	if a != b {
		t.Errorf("structurally equal pointer types interned to distinct handles: %v vs %v", a, b)
	}

	c := f.Harden(f.PtrTo(f.IntTy(true)), nil)
	f.ClearFragments()
	if a == c {
		t.Error("int* and unsigned int* interned to the same handle")
	}
}

func TestFragmentConfinement(t *testing.T) {
	f := newFactory()
	frag := f.ArrayOf(f.IntTy(false), 4)
	if frag.arena != fragmentArena {
		t.Fatal("new derivation should be staged as a fragment")
	}
	hardened := f.Harden(frag, nil)
	if hardened.arena != hardenedArena {
		t.Fatal("hardened handle still points into fragments")
	}
	f.ClearFragments()
	if n := f.FragmentCount(); n != 0 {
		t.Errorf("%d fragments survive ClearFragments", n)
	}

	// hardened handle stays usable after the scratch is reclaimed
	if hardened.Kind() != Array || hardened.ArrayLen() != 4 {
		t.Errorf("hardened handle corrupted: %v", hardened)
	}
}

func TestBaseChainRef(t *testing.T) {
	f := newFactory()

	// build int *[3] the way the declarator parser does: suffixes first,
	// base last
	var ref BaseChainRef
	arr := f.ArrayOf(Type{}, 3)
	ref.Chain(arr)
	ptr := f.PtrTo(Type{})
	ref.Chain(ptr)
	*ref.Deref() = f.IntTy(false)

	got := f.Harden(arr, nil)
	f.ClearFragments()

	want := f.Harden(f.ArrayOf(f.Harden(f.PtrTo(f.IntTy(false)), nil), 3), nil)
	f.ClearFragments()
	if got != want {
		t.Errorf("chained declarator type %v, want %v", got, want)
	}
}

func TestStructCompletionInPlace(t *testing.T) {
	f := newFactory()
	tag := strpool.Intern("S")

	fwd := f.Harden(f.StructOrUnion(token.Struct, nil, true, tag), nil)
	f.ClearFragments()
	if fwd.IsComplete() {
		t.Fatal("forward declaration should be incomplete")
	}

	ptr := f.Harden(f.PtrTo(fwd), nil)
	f.ClearFragments()

	members := []Member{{Name: strpool.Intern("x"), Ty: f.IntTy(false)}}
	completed := f.Harden(f.StructOrUnion(token.Struct, members, false, tag), &fwd)
	f.ClearFragments()

	if completed.index != fwd.index {
		t.Errorf("completion allocated a new slot: %d vs %d", completed.index, fwd.index)
	}
	if !fwd.IsComplete() {
		t.Error("outstanding forward handle does not see the completion")
	}
	if ptr.Elem().MemberIndex(strpool.Intern("x")) != 0 {
		t.Error("pointer type does not resolve to the completed aggregate")
	}
}

func TestAnonymousAggregatesAreFresh(t *testing.T) {
	f := newFactory()
	m := []Member{{Name: strpool.Intern("x"), Ty: f.IntTy(false)}}
	a := f.Harden(f.StructOrUnion(token.Struct, m, false, 0), nil)
	f.ClearFragments()
	b := f.Harden(f.StructOrUnion(token.Struct, m, false, 0), nil)
	f.ClearFragments()
	if a == b {
		t.Error("two anonymous structs unified")
	}
}

func TestPromote(t *testing.T) {
	f := newFactory()
	tests := []struct {
		name string
		in   Type
		want Type
	}{
		{"char", f.CharTy(), f.IntTy(false)},
		{"bool", f.BoolTy(), f.IntTy(false)},
		{"short", f.Harden(f.IntegralTy(Short, false), nil), f.IntTy(false)},
		{"unsigned short", f.Harden(f.IntegralTy(Short, true), nil), f.IntTy(true)},
		{"int", f.IntTy(false), f.IntTy(false)},
		{"long", f.Harden(f.IntegralTy(Long, false), nil), f.Harden(f.IntegralTy(Long, false), nil)},
		{"double", f.Harden(f.RealTy(Double), nil), f.Harden(f.RealTy(Double), nil)},
	}
	f.ClearFragments()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := f.Promote(tc.in); got != tc.want {
				t.Errorf("Promote(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestCommonRealType(t *testing.T) {
	f := newFactory()
	intTy := f.IntTy(false)
	uintTy := f.IntTy(true)
	longTy := f.Harden(f.IntegralTy(Long, false), nil)
	ulongTy := f.Harden(f.IntegralTy(Long, true), nil)
	charTy := f.CharTy()
	floatTy := f.Harden(f.RealTy(Float), nil)
	doubleTy := f.Harden(f.RealTy(Double), nil)
	f.ClearFragments()

	tests := []struct {
		name string
		a, b Type
		want Type
	}{
		{"int int", intTy, intTy, intTy},
		{"char int", charTy, intTy, intTy},
		{"int long", intTy, longTy, longTy},
		{"int float", intTy, floatTy, floatTy},
		{"float double", floatTy, doubleTy, doubleTy},
		{"int uint", intTy, uintTy, uintTy},
		// long (64 bit) can represent every unsigned int (32 bit)
		{"uint long", uintTy, longTy, longTy},
		// unsigned long vs int: the unsigned side has the higher rank and
		// wins
		{"ulong int", ulongTy, intTy, ulongTy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := f.CommonRealType(tc.a, tc.b)
			if got != tc.want {
				t.Errorf("CommonRealType(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
			if rev := f.CommonRealType(tc.b, tc.a); rev != got {
				t.Errorf("CommonRealType is not commutative for (%v, %v)", tc.a, tc.b)
			}
		})
	}
}

func TestRankMonotonicity(t *testing.T) {
	f := newFactory()
	ladder := []Type{
		f.BoolTy(),
		f.CharTy(),
		f.Harden(f.IntegralTy(Short, false), nil),
		f.IntTy(false),
		f.Harden(f.IntegralTy(Long, false), nil),
		f.Harden(f.IntegralTy(LongLong, false), nil),
	}
	f.ClearFragments()
	for i := 0; i < len(ladder); i++ {
		for j := i + 1; j < len(ladder); j++ {
			got := f.CommonRealType(ladder[i], ladder[j])
			want := ladder[j]
			if want.Rank() < int(Int) {
				want = f.IntTy(false)
			}
			if got != want {
				t.Errorf("CommonRealType(%v, %v) = %v, want %v", ladder[i], ladder[j], got, want)
			}
		}
	}
}

func TestNullHandleIsInert(t *testing.T) {
	f := newFactory()
	var null Type
	if !null.IsNil() {
		t.Fatal("zero Type should be nil")
	}
	if null.Kind() != Undef {
		t.Errorf("null handle kind = %v", null.Kind())
	}
	if !null.Elem().IsNil() {
		t.Error("Elem of null handle should be null")
	}
	if got := f.CommonRealType(null, f.IntTy(false)); got != f.IntTy(false) {
		t.Errorf("CommonRealType(null, int) = %v", got)
	}
	if null.IsComplete() {
		t.Error("null handle should be incomplete")
	}
	_ = null.String() // must not panic
}

func TestFromConstToken(t *testing.T) {
	f := newFactory()
	tests := []struct {
		kind token.Kind
		want Type
	}{
		{token.IConst, f.IntTy(false)},
		{token.UConst, f.IntTy(true)},
		{token.LLConst, f.Harden(f.IntegralTy(LongLong, false), nil)},
		{token.DConst, f.Harden(f.RealTy(Double), nil)},
	}
	f.ClearFragments()
	for _, tc := range tests {
		got := f.FromConstToken(token.Token{Kind: tc.kind})
		if got != tc.want {
			t.Errorf("FromConstToken(%v) = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
