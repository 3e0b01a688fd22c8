package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/relaydb/sqljournal/internal/ui"
)

// useColor is resolved once at startup and can be overridden by --no-color.
var useColor = ui.ShouldUseColor()

// printResult renders a single result as JSON (--json) or a minimal
// key: value table.
func printResult(v map[string]any) {
	if jsonOutput {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error marshaling JSON: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}
	for _, k := range []string{"persistence_id", "sequence_nr", "max_sequence_nr", "status", "ordering", "key"} {
		if val, ok := v[k]; ok {
			fmt.Printf("%s: %v\n", k, val)
		}
	}
}

// printEnvelope renders one read-side envelope to stdout.
func printEnvelope(v map[string]any) {
	if jsonOutput {
		data, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error marshaling JSON: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}
	ordering := fmt.Sprintf("%v", v["ordering"])
	pid := fmt.Sprintf("%v", v["persistence_id"])
	seq := fmt.Sprintf("%v", v["sequence_nr"])
	event := fmt.Sprintf("%v", v["event"])
	if useColor {
		fmt.Printf("ordering=%s persistence_id=%s sequence_nr=%s event=%s\n",
			ui.RenderAccent(ordering), ui.RenderTag(pid), ui.RenderMuted(seq), event)
		return
	}
	fmt.Printf("ordering=%s persistence_id=%s sequence_nr=%s event=%s\n", ordering, pid, seq, event)
}
