package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
	"github.com/jcdickinson/ferrisfind/internal/markdown"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
)

const descWidth = 100

// writeStructured encodes v as json or yaml.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json, or yaml)", format)
	}
}

type resultTab struct {
	title string
	items []rpc.ItemResult
}

// resultTabs groups a response the way the rustdoc results page does. A
// query that failed to parse, or that searches by signature, only has one
// tab.
func resultTabs(resp *rpc.SearchResponse) []resultTab {
	q := resp.Query
	if q == nil || q.Error != "" || (q.FoundElems <= 1 && len(q.Returned) == 0) {
		tabs := []resultTab{{"In Names", resp.Others}}
		if q != nil && q.Error != "" {
			return tabs
		}
		return append(tabs,
			resultTab{"In Parameters", resp.InArgs},
			resultTab{"In Return Types", resp.Returned},
		)
	}

	title := "In Function Signatures"
	switch {
	case len(q.Elems) == 0:
		title = "In Function Return Types"
	case len(q.Returned) == 0:
		title = "In Function Parameters"
	}
	return []resultTab{{title, resp.Others}}
}

// writeText prints a human readable result listing with at most limit
// results per tab.
func writeText(w io.Writer, resp *rpc.SearchResponse, crate string, limit int) {
	if q := resp.Query; q != nil {
		header := "Results for " + q.UserQuery
		if q.TypeFilter != itemtype.None {
			header += " (type: " + q.TypeFilter.String() + ")"
		}
		if crate != "" {
			header += " in " + crate
		}
		fmt.Fprintln(w, header)
		if q.Error != "" {
			fmt.Fprintf(w, "Query parser error: %q.\n", q.Error)
		}
	}

	for _, tab := range resultTabs(resp) {
		fmt.Fprintf(w, "\n%s (%d)\n", tab.title, len(tab.items))
		items := tab.items
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		if len(items) == 0 {
			fmt.Fprintln(w, "  no results")
			continue
		}
		for _, it := range items {
			writeItem(w, it)
		}
	}
}

func writeItem(w io.Writer, it rpc.ItemResult) {
	var line strings.Builder
	line.WriteString("  ")
	line.WriteString(it.DisplayPath)
	line.WriteString(it.Name)
	fmt.Fprintf(&line, " [%s]", it.Kind)
	if it.Signature != "" {
		line.WriteString(" fn")
		line.WriteString(it.Signature)
	}
	if it.IsAlias {
		fmt.Fprintf(&line, " (alias %s)", it.Alias)
	}
	fmt.Fprintln(w, line.String())

	fmt.Fprintf(w, "      %s\n", it.Href)
	if desc := markdown.Summary(it.Desc, descWidth); desc != "" {
		fmt.Fprintf(w, "      %s\n", desc)
	}
}
