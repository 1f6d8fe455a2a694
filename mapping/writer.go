package mapping

import (
	"bufio"
	"io"
	"sort"
)

type writer struct {
	readableFirst bool
}

type WriterOption func(*writer)

// WriteReadableFirst writes every arrow as "readable -> obfuscated", so that
// the output reads back with ReadableFirst.
func WriteReadableFirst() WriterOption {
	return func(w *writer) {
		w.readableFirst = true
	}
}

// WriteTo writes table in map-file form, classes in name order with their
// members grouped under them.
func WriteTo(w io.Writer, table *SymbolTable, opts ...WriterOption) error {
	var options writer
	for _, opt := range opts {
		opt(&options)
	}
	bufWriter := bufio.NewWriter(w)

	// Classes come first in key order, so an owner is known to have a class
	// mapping by the time its members are seen. Owners with member mappings
	// but no class mapping still need a header.
	classes := make(map[string]string)
	members := make(map[string][]Key)
	var order []string
	table.Each(func(key Key, entry Entry) {
		if key.Kind == Class {
			classes[key.Name] = entry.Readable
			order = append(order, key.Name)
			return
		}
		if _, ok := classes[key.Owner]; !ok && len(members[key.Owner]) == 0 {
			order = append(order, key.Owner)
		}
		members[key.Owner] = append(members[key.Owner], key)
	})

	sort.Strings(order)
	for _, owner := range order {
		if readable, ok := classes[owner]; ok {
			options.writeArrow(bufWriter, owner, "", readable)
		} else {
			bufWriter.WriteString(owner)
		}
		bufWriter.WriteString(":\n")

		for _, key := range members[owner] {
			entry, _ := table.Lookup(key)
			args := ""
			if key.Kind == Method && entry.Args != "" {
				args = "(" + entry.Args + ")"
			}
			bufWriter.WriteString("    ")
			bufWriter.WriteString(key.Kind.String())
			bufWriter.WriteString(" ")
			options.writeArrow(bufWriter, key.Name, args, entry.Readable)
			bufWriter.WriteString("\n")
		}
	}

	return bufWriter.Flush()
}

// writeArrow writes one mapping in the configured orientation. Arguments
// stay on the left-hand name, where the reader expects them.
func (o writer) writeArrow(w *bufio.Writer, obfuscated string, args string, readable string) {
	left, right := obfuscated, readable
	if o.readableFirst {
		left, right = readable, obfuscated
	}
	w.WriteString(left)
	w.WriteString(args)
	w.WriteString(" -> ")
	w.WriteString(right)
}
