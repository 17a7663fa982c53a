package main

import (
	"encoding/json"
	"io"

	cascade "github.com/goliatone/go-cascade"
	"github.com/olekukonko/tablewriter"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEntities(w io.Writer, format string, entities []cascade.Entity) error {
	if format == formatJSON {
		if entities == nil {
			entities = []cascade.Entity{}
		}
		return writeJSON(w, entities)
	}
	table := newTable(w, "ID", "NAME", "PARENT", "CODE")
	for _, entity := range entities {
		parent := ""
		if entity.ParentID != nil {
			parent = string(*entity.ParentID)
		}
		table.Append([]string{string(entity.ID), entity.DisplayName, parent, entity.Code})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	return table
}
