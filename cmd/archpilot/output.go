package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

var (
	outputFormat string // "table", "json", "raw"
	outputField  string // for -field=key
)

// printResult outputs API data in the chosen format. Table mode knows the
// two list shapes this API returns (designs, audit entries) and renders
// them as aligned rows; everything else falls back to key/value lines.
func printResult(data map[string]any) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(data) //nolint:errcheck
	case "raw":
		if outputField != "" {
			if v, ok := data[outputField]; ok {
				fmt.Println(v)
			}
		} else {
			for k, v := range data {
				fmt.Printf("%s=%v\n", k, v)
			}
		}
	default: // table
		if designs, ok := data["designs"].([]any); ok {
			printDesigns(designs)
			return
		}
		if entries, ok := data["entries"].([]any); ok {
			printAuditEntries(entries)
			return
		}
		printKV(data)
	}
}

func printDesigns(designs []any) {
	if len(designs) == 0 {
		fmt.Println("No designs yet. Run: archpilot design generate <prompt>")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tPROVIDER\tTIER\tID")
	for _, d := range designs {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\n",
			shortTime(m["created_at"]), m["provider"], m["tier"], m["id"])
	}
	w.Flush()
}

func printAuditEntries(entries []any) {
	if len(entries) == 0 {
		fmt.Println("No audit entries.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMETHOD\tPATH\tCODE\tMS\tCLIENT")
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%v\t%v\n",
			shortTime(m["time"]), m["operation"], m["path"],
			m["response_code"], m["response_time_ms"], m["client_ip"])
	}
	w.Flush()
}

// printKV renders a flat response (signup, status, key operations) as
// sorted key/value rows.
func printKV(data map[string]any) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch val := data[k].(type) {
		case map[string]any:
			fmt.Fprintf(w, "%s\t\n", strings.ToUpper(k))
			inner := make([]string, 0, len(val))
			for kk := range val {
				inner = append(inner, kk)
			}
			sort.Strings(inner)
			for _, kk := range inner {
				fmt.Fprintf(w, "  %s\t%v\n", kk, val[kk])
			}
		default:
			fmt.Fprintf(w, "%s\t%v\n", k, val)
		}
	}
	w.Flush()
}

// shortTime compacts an RFC3339 timestamp for table rows; anything else
// passes through untouched.
func shortTime(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
}

func printSuccess(msg string) {
	fmt.Println(msg)
}
