package main

import "testing"

func straightLineFixture() fixture {
	return fixture{
		Root: "main",
		Functions: []fixtureFunc{
			{Label: "main", Entry: 0x0, Blocks: []fixtureBlock{
				{Start: 0x0, Size: 4, Code: "call 0x100"},
				{Start: 0x4, Size: 4, Code: "ret"},
			}},
			{Label: "helper", Entry: 0x100, Blocks: []fixtureBlock{
				{Start: 0x100, Size: 4, Code: "ret"},
			}},
		},
		Edges: []fixtureEdge{
			{Func: "main", From: 0x0, To: 0x4},
		},
		Calls: []fixtureCall{
			{Func: "main", Site: 0x0, Callee: "helper"},
		},
		CallGraph: []fixtureCallGraph{
			{Caller: "main", Callee: "helper"},
		},
	}
}

func TestBuildFromFixtureWiresCallAcrossFunctions(t *testing.T) {
	ld, err := buildFromFixture(straightLineFixture())
	if err != nil {
		t.Fatalf("buildFromFixture: %v", err)
	}

	if ld.FuncLabels[0x0] != "main" || ld.FuncLabels[0x100] != "helper" {
		t.Fatalf("unexpected function labels: %+v", ld.FuncLabels)
	}
	if len(ld.CallGraph) != 1 || ld.CallGraph[0].Caller != 0x0 || ld.CallGraph[0].Callee != 0x100 {
		t.Fatalf("unexpected call graph: %+v", ld.CallGraph)
	}

	pairs, err := ld.Graph.CallReturnPairs()
	if err != nil {
		t.Fatalf("CallReturnPairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected exactly one call/return pair, got %d", len(pairs))
	}
}

func TestBuildFromFixtureRejectsUnknownRoot(t *testing.T) {
	f := straightLineFixture()
	f.Root = "nonexistent"
	if _, err := buildFromFixture(f); err == nil {
		t.Fatal("expected an error for an unknown root function")
	}
}
