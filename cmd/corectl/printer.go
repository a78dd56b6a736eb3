package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// printer writes command results either as one JSON document per line or
// as indented JSON meant for a terminal.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON}
}

func (p *printer) print(v any) error {
	enc := json.NewEncoder(p.w)
	if !p.json {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// list prints one item per line in text mode and a JSON array otherwise.
func (p *printer) list(items []string) error {
	if p.json {
		if items == nil {
			items = []string{}
		}
		return p.print(items)
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(p.w, item); err != nil {
			return err
		}
	}
	return nil
}
