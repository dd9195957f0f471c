// Package ir enumerates call sites in LLVM modules and loads modules from
// disk. Only statically named callees become edges; everything reached
// through a function pointer, a vtable slot, or inline assembly is counted
// as lost rather than guessed at.
package ir

import (
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"

	llir "github.com/llir/llvm/ir"
)

// CallSite is one call-like instruction with a statically known target.
// Both names are raw linker symbols, not demangled.
type CallSite struct {
	Caller string
	Callee string
}

// Stats counts what the walker saw in one module.
type Stats struct {
	Functions int
	Sites     int
	LostEdges int
}

// WalkCalls visits every basic block of every function defined in the
// module and yields a CallSite per call, invoke, and callbr whose callee is
// a direct function reference. Tail and musttail calls are ordinary calls
// here. Declarations have no body and contribute nothing.
func WalkCalls(m *llir.Module) ([]CallSite, Stats) {
	var sites []CallSite
	var stats Stats

	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		stats.Functions++
		caller := f.Name()

		for _, block := range f.Blocks {
			for _, inst := range block.Insts {
				call, ok := inst.(*llir.InstCall)
				if !ok {
					continue
				}
				stats.Sites++
				if callee, ok := directCallee(call.Callee); ok {
					sites = append(sites, CallSite{Caller: caller, Callee: callee})
				} else {
					stats.LostEdges++
				}
			}

			switch term := block.Term.(type) {
			case *llir.TermInvoke:
				stats.Sites++
				if callee, ok := directCallee(term.Invokee); ok {
					sites = append(sites, CallSite{Caller: caller, Callee: callee})
				} else {
					stats.LostEdges++
				}
			case *llir.TermCallBr:
				stats.Sites++
				if callee, ok := directCallee(term.Callee); ok {
					sites = append(sites, CallSite{Caller: caller, Callee: callee})
				} else {
					stats.LostEdges++
				}
			}
		}
	}

	return sites, stats
}

// directCallee resolves a call operand to a function symbol. Bitcast
// constant expressions around a function (common in pre-opaque-pointer IR)
// are unwrapped; anything else is indirect.
func directCallee(v value.Value) (string, bool) {
	switch callee := v.(type) {
	case *llir.Func:
		return callee.Name(), true
	case *constant.ExprBitCast:
		if f, ok := callee.From.(*llir.Func); ok {
			return f.Name(), true
		}
		return "", false
	default:
		return "", false
	}
}
