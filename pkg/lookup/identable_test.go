package lookup

import (
	"strings"
	"testing"
)

func TestLoadIdenTable_ParsesRowsAndSkipsComments(t *testing.T) {
	data := `# comment
1 450000000 12500 -5000000

2 851000000 12500 0
`
	table, err := LoadIdenTable(strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ci, ok := table.Lookup(1)
	if !ok {
		t.Fatalf("expected identity 1 to be present")
	}
	rx, tx := ci.Frequencies(2)
	if rx != 450000000+2*12500 {
		t.Fatalf("unexpected rx frequency: %d", rx)
	}
	if tx != rx-5000000 {
		t.Fatalf("unexpected tx frequency: %d", tx)
	}

	if _, ok := table.Lookup(99); ok {
		t.Fatalf("expected no entry for unknown id")
	}
}

func TestLoadIdenTable_RejectsMalformedRow(t *testing.T) {
	if _, err := LoadIdenTable(strings.NewReader("1 450000000 12500\n")); err == nil {
		t.Fatal("expected error for row with wrong field count")
	}
}
